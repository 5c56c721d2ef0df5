package verify

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/notionmirror/notionmirror/cmd/util"
	"github.com/notionmirror/notionmirror/pkg/config"
	"github.com/notionmirror/notionmirror/pkg/errors"
	"github.com/notionmirror/notionmirror/pkg/notion"
)

const sampleSize = 20

// New creates a new `verify` command. It's a connectivity diagnostic: it
// confirms the token works and shows what the integration can actually see,
// which is the usual culprit when pages are missing from the mirror.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check Notion API access and list what the integration can see.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := verifyAccess(); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func verifyAccess() error {
	cfg, err := config.Parse()
	if err != nil {
		return errors.WithContext(err, "load config")
	}
	if err := cfg.RequireToken(); err != nil {
		return err
	}

	client := notion.NewHTTPClient(notion.Options{
		Token:      cfg.Token,
		APIVersion: cfg.NotionVersion,
	})

	ctx := context.Background()
	pages, err := client.Search(ctx, notion.ObjectPage)
	if err != nil {
		return errors.WithContext(err, "search pages")
	}
	databases, err := client.Search(ctx, notion.ObjectDatabase)
	if err != nil {
		return errors.WithContext(err, "search databases")
	}

	fmt.Printf("Pages: %d\n", len(pages))
	fmt.Printf("Databases: %d\n", len(databases))

	fmt.Println("\nSample pages:")
	printSample(pages, "untitled_page")
	fmt.Println("\nSample databases:")
	printSample(databases, "untitled_db")

	if len(pages) == 0 && len(databases) == 0 {
		fmt.Println("\nThe integration can't see anything. Share your pages with it " +
			"via Notion's 'Connections' menu.")
	}
	return nil
}

func printSample(objects []notion.Object, fallbackTitle string) {
	if len(objects) == 0 {
		fmt.Println("- (none)")
		return
	}
	for i, obj := range objects {
		if i == sampleSize {
			break
		}
		title := obj.PageTitle()
		if title == "" {
			title = fallbackTitle
		}
		fmt.Printf("- %s %s\n", title, obj.ID)
	}
}
