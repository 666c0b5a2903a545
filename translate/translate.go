// Package translate localizes the user-visible messages of the emulator.
package translate

import (
	"log"
	"os"
	"strings"

	"github.com/jeandeaual/go-locale"

	"golang.org/x/text/message"
)

// ENV_LANG names the environment variable that overrides the system
// locale. It holds a colon separated list of BCP 47 tags.
const ENV_LANG = "ARMEMU_LANG"

var printer *message.Printer

func init() {
	SetLanguages(Languages()...)
}

// Languages returns the preferred message languages, most preferred first.
func Languages() (tags []string) {
	if env := os.Getenv(ENV_LANG); len(env) != 0 {
		for _, tag := range strings.Split(env, ":") {
			if len(tag) != 0 {
				tags = append(tags, tag)
			}
		}
	}

	if len(tags) == 0 {
		var err error
		tags, err = locale.GetLocales()
		if err != nil {
			log.Printf("armemu: locale: %v", err)
		}
	}

	if len(tags) == 0 {
		tags = []string{"en-US"}
	}

	return
}

// SetLanguages selects the message language that best matches tags.
// Messages already formatted keep their language.
func SetLanguages(tags ...string) {
	printer = message.NewPrinter(message.MatchLanguage(tags...))
}

// From formats an en-US Sprintf() style key in the active locale.
func From(key message.Reference, args ...any) string {
	return printer.Sprintf(key, args...)
}
