package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"newsgraph/internal/api"
)

// submissionFlags holds the flags shared by article and fragment submission.
type submissionFlags struct {
	id        string
	headline  string
	text      string
	textFile  string
	markup    string
	url       string
	outlet    string
	country   string
	mediaType string
	author    string
	section   string
	language  string
	published string
	tags      []string
	metadata  map[string]string
	file      string
}

func (f *submissionFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.id, "id", "", "Item identifier (generated when empty)")
	flags.StringVar(&f.headline, "headline", "", "Headline")
	flags.StringVar(&f.text, "text", "", "Plain body text")
	flags.StringVar(&f.textFile, "text-file", "", "Read plain body text from a file (- for stdin)")
	flags.StringVar(&f.markup, "markup-file", "", "Read HTML markup from a file (- for stdin)")
	flags.StringVar(&f.url, "url", "", "Source URL")
	flags.StringVar(&f.outlet, "outlet", "", "Publishing outlet")
	flags.StringVar(&f.country, "country", "", "Outlet country")
	flags.StringVar(&f.mediaType, "media-type", "", "Outlet media type")
	flags.StringVar(&f.author, "author", "", "Author")
	flags.StringVar(&f.section, "section", "", "Section")
	flags.StringVar(&f.language, "language", "", "Declared language code")
	flags.StringVar(&f.published, "published", "", "Publication time (RFC3339)")
	flags.StringSliceVar(&f.tags, "tag", nil, "Source tag (repeatable)")
	flags.StringToStringVar(&f.metadata, "meta", nil, "Opaque metadata key=value (repeatable)")
	flags.StringVarP(&f.file, "file", "f", "", "Read the whole request as JSON from a file (- for stdin)")
}

func (f *submissionFlags) source() (api.Source, error) {
	src := api.Source{
		URL:       strings.TrimSpace(f.url),
		Outlet:    strings.TrimSpace(f.outlet),
		Country:   strings.TrimSpace(f.country),
		MediaType: strings.TrimSpace(f.mediaType),
		Author:    strings.TrimSpace(f.author),
		Section:   strings.TrimSpace(f.section),
		Tags:      f.tags,
		Language:  strings.TrimSpace(f.language),
	}
	if value := strings.TrimSpace(f.published); value != "" {
		ts, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return api.Source{}, fmt.Errorf("invalid --published %q: %w", value, err)
		}
		src.PublishedAt = &ts
	}
	return src, nil
}

func (f *submissionFlags) body(stdin io.Reader) (string, string, error) {
	text := f.text
	if f.textFile != "" {
		data, err := readInput(f.textFile, stdin)
		if err != nil {
			return "", "", fmt.Errorf("read text: %w", err)
		}
		text = string(data)
	}
	var markup string
	if f.markup != "" {
		data, err := readInput(f.markup, stdin)
		if err != nil {
			return "", "", fmt.Errorf("read markup: %w", err)
		}
		markup = string(data)
	}
	if strings.TrimSpace(text) == "" && strings.TrimSpace(markup) == "" {
		return "", "", fmt.Errorf("one of --text, --text-file, --markup-file or --file is required")
	}
	return text, markup, nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func decodeRequestFile(path string, stdin io.Reader, target any) error {
	data, err := readInput(path, stdin)
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("parse request %s: %w", path, err)
	}
	return nil
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var flags submissionFlags
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit an article for knowledge extraction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var req api.ArticleRequest
			if flags.file != "" {
				if err := decodeRequestFile(flags.file, cmd.InOrStdin(), &req); err != nil {
					return err
				}
			} else {
				text, markup, err := flags.body(cmd.InOrStdin())
				if err != nil {
					return err
				}
				src, err := flags.source()
				if err != nil {
					return err
				}
				req = api.ArticleRequest{
					ID:       strings.TrimSpace(flags.id),
					Headline: strings.TrimSpace(flags.headline),
					Text:     text,
					Markup:   markup,
					Source:   src,
					Metadata: flags.metadata,
				}
			}
			resp, err := ctx.client().SubmitArticle(cmd.Context(), req)
			if err != nil {
				return wrapAPIError(err, ctx.baseURL())
			}
			return emitSubmitted(cmd, ctx, resp)
		},
	}
	flags.register(cmd)
	return cmd
}

func newFragmentCommand(ctx *commandContext) *cobra.Command {
	fragmentCmd := &cobra.Command{
		Use:   "fragment",
		Short: "Long-document fragment operations",
	}
	fragmentCmd.AddCommand(newFragmentSubmitCommand(ctx))
	return fragmentCmd
}

func newFragmentSubmitCommand(ctx *commandContext) *cobra.Command {
	var flags submissionFlags
	var parentID string
	var fragmentID string
	var sequence int
	var total int

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit one fragment of a long document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var req api.FragmentRequest
			if flags.file != "" {
				if err := decodeRequestFile(flags.file, cmd.InOrStdin(), &req); err != nil {
					return err
				}
			} else {
				if strings.TrimSpace(parentID) == "" || strings.TrimSpace(fragmentID) == "" {
					return fmt.Errorf("--parent and --fragment-id are required")
				}
				text, markup, err := flags.body(cmd.InOrStdin())
				if err != nil {
					return err
				}
				src, err := flags.source()
				if err != nil {
					return err
				}
				req = api.FragmentRequest{
					ID:         strings.TrimSpace(flags.id),
					ParentID:   strings.TrimSpace(parentID),
					FragmentID: strings.TrimSpace(fragmentID),
					Sequence:   sequence,
					Total:      total,
					Headline:   strings.TrimSpace(flags.headline),
					Text:       text,
					Markup:     markup,
					Source:     src,
					Metadata:   flags.metadata,
				}
			}
			resp, err := ctx.client().SubmitFragment(cmd.Context(), req)
			if err != nil {
				return wrapAPIError(err, ctx.baseURL())
			}
			return emitSubmitted(cmd, ctx, resp)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&parentID, "parent", "", "Parent document identifier")
	cmd.Flags().StringVar(&fragmentID, "fragment-id", "", "Fragment identifier")
	cmd.Flags().IntVar(&sequence, "sequence", 1, "Fragment position within the document (1-based)")
	cmd.Flags().IntVar(&total, "total", 1, "Total fragments in the document")
	return cmd
}

func emitSubmitted(cmd *cobra.Command, ctx *commandContext, resp api.SubmitResponse) error {
	return emit(cmd, ctx, resp, func() string {
		return fmt.Sprintf("Accepted %s (status %s, request %s)", resp.ItemID, resp.Status, resp.RequestID)
	})
}
