// Command review-scraper collects Amazon product reviews per ASIN.
package main

import (
	"os"

	"github.com/maltedev/amazon-review-scraper/cmd/review-scraper/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
