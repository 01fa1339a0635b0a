package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mesh-learning/tileboard/internal/sqlite"
	"github.com/mesh-learning/tileboard/pkg/document"
	"github.com/mesh-learning/tileboard/pkg/store"
	tbsync "github.com/mesh-learning/tileboard/pkg/sync"
)

func newDocCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Manage documents in the local store",
	}
	cmd.AddCommand(newDocCreateCmd())
	cmd.AddCommand(newDocListCmd())
	return cmd
}

// openSyncer opens the local backend and builds a syncer for the
// configured user. The caller must invoke the returned cleanup.
func openSyncer(cmd *cobra.Command) (*tbsync.Syncer, func(), error) {
	log := newLogger()
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	dataDir, err := resolveDataDir(cfg)
	if err != nil {
		return nil, nil, err
	}
	backend, err := sqlite.Open(dataDir, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	session := backend.Hub().NewSession()
	p := store.NewPaths(cfg.Mode, "", storeUser(cfg))
	syncer := tbsync.New(session, p, log)
	cleanup := func() {
		syncer.Close()
		session.Close()
		backend.Close()
	}
	return syncer, cleanup, nil
}

func newDocCreateCmd() *cobra.Command {
	var sectionID, title string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a document",
		Long:  "Create a section document (--section) or a learning log (--title).",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sectionID == "" && title == "" {
				return exitError(cmd, exitUserError, "one of --section or --title is required")
			}
			syncer, cleanup, err := openSyncer(cmd)
			if err != nil {
				return exitError(cmd, exitSysError, err.Error())
			}
			defer cleanup()

			var doc *document.Document
			if sectionID != "" {
				doc, err = syncer.CreateSectionDocument(sectionID)
			} else {
				doc, err = syncer.CreateLearningLog(title)
			}
			if err != nil {
				return exitError(cmd, exitSysError, fmt.Sprintf("create document: %s", err))
			}

			if flags.jsonMode {
				return printJSON(cmd, map[string]string{"key": doc.Key, "type": doc.Type})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s document %s\n", doc.Type, doc.Key)
			return nil
		},
	}
	cmd.Flags().StringVar(&sectionID, "section", "", "curriculum section id")
	cmd.Flags().StringVar(&title, "title", "", "learning log title")
	return cmd
}

// docListing is one row of doc list output.
type docListing struct {
	Key       string `json:"key"`
	Type      string `json:"type"`
	CreatedAt int64  `json:"createdAt"`
}

func newDocListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the configured user's documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			cfg, _, err := loadConfig()
			if err != nil {
				return exitError(cmd, exitUserError, err.Error())
			}
			dataDir, err := resolveDataDir(cfg)
			if err != nil {
				return exitError(cmd, exitSysError, err.Error())
			}
			backend, err := sqlite.Open(dataDir, log)
			if err != nil {
				return exitError(cmd, exitSysError, fmt.Sprintf("open storage: %s", err))
			}
			defer backend.Close()

			p := store.NewPaths(cfg.Mode, "", storeUser(cfg))
			tree, err := backend.Hub().Once(p.FullPath(p.UserDocumentMetadataPath("", "")))
			if err != nil {
				return exitError(cmd, exitSysError, err.Error())
			}

			listings := collectListings(tree)
			if flags.jsonMode {
				return printJSON(cmd, listings)
			}
			if len(listings) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No documents")
				return nil
			}
			for _, l := range listings {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d\n", l.Key, l.Type, l.CreatedAt)
			}
			return nil
		},
	}
}

// collectListings decodes a documentMetadata collection subtree into
// sorted listings, skipping undecodable entries.
func collectListings(tree any) []docListing {
	listings := []docListing{}
	m, ok := tree.(map[string]any)
	if !ok {
		return listings
	}
	for key, sub := range m {
		var meta store.DocumentMetadata
		if err := store.Decode(sub, &meta); err != nil {
			continue
		}
		listings = append(listings, docListing{
			Key:       key,
			Type:      meta.Type,
			CreatedAt: meta.CreatedAtMillis(),
		})
	}
	sort.Slice(listings, func(i, j int) bool { return listings[i].Key < listings[j].Key })
	return listings
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
