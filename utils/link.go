package utils

import (
	"fmt"
	"strings"

	"github.com/gosimple/slug"
)

// BuildReferralLink returns the bot deep link carrying the code,
// e.g. https://t.me/tap_game_bot?start=AB12CD34.
func BuildReferralLink(botBase, code string) string {
	return fmt.Sprintf("%s?start=%s", strings.TrimRight(botBase, "/"), code)
}

// BuildVanityShareLink returns the web share link with a readable
// username segment, e.g. https://play.example.com/r/jane-doe/AB12CD34.
func BuildVanityShareLink(webBase, username, code string) string {
	s := slug.Make(username)
	if s == "" {
		s = "player"
	}
	return fmt.Sprintf("%s/r/%s/%s", strings.TrimRight(webBase, "/"), s, code)
}
