// Package main provides the Munin CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/muninhq/munin/pkg/config"
	"github.com/muninhq/munin/pkg/knowledge"
	"github.com/muninhq/munin/pkg/munin"
	"github.com/muninhq/munin/pkg/search"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildTime = "unknown" // Set via ldflags: -X main.buildTime=$(date +%Y%m%d-%H%M%S)
)

func main() {
	// .env is optional; real env always wins
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "munin",
		Short: "Munin - organizational knowledge retrieval",
		Long: `Munin stores decisions, incidents, meeting records and code-change
snapshots as typed knowledge items and answers natural-language queries with
a token-budgeted, ranked bundle of the most relevant items plus their
graph-connected neighbors.`,
	}

	rootCmd.PersistentFlags().String("config", getEnvStr("MUNIN_CONFIG", ""), "Path to YAML config file")
	rootCmd.PersistentFlags().String("data-dir", getEnvStr("MUNIN_DATA_DIR", ""), "Data directory (overrides config)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("munin %s (%s, built %s)\n", version, commit, buildTime)
		},
	})

	rootCmd.AddCommand(newAddCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newBundleCmd())
	rootCmd.AddCommand(newRelatedCmd())
	rootCmd.AddCommand(newLinkCmd())
	rootCmd.AddCommand(newGraphCmd())
	rootCmd.AddCommand(newDecayCmd())
	rootCmd.AddCommand(newSeedCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openDB loads configuration and opens the database for a one-shot command.
// The decay scheduler stays off; decay runs only via "munin decay run".
func openDB(cmd *cobra.Command) (*munin.DB, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	cfg.Decay.Enabled = false

	return munin.Open(cfg)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func newAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a knowledge item",
		Long: `Add a knowledge item of the given type. The item is embedded and
auto-linked to any items its text references by ID.

Examples:
  munin add --type decision --title "Use PostgreSQL" --decision "PostgreSQL is the primary store"
  munin add --type incident --title "Pool exhaustion" --root-cause "Unbounded pool" --tags database,performance`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			item, err := itemFromFlags(cmd)
			if err != nil {
				return err
			}

			id, err := db.CreateItem(context.Background(), item)
			if err != nil {
				return err
			}

			fmt.Printf("✅ Created %s\n", id)
			return nil
		},
	}

	cmd.Flags().String("type", "", "Item type: decision, incident, meeting, snapshot (required)")
	cmd.Flags().String("title", "", "Item title (required)")
	cmd.Flags().StringSlice("tags", nil, "Tags (derived from text when omitted)")
	cmd.Flags().String("status", "", "Initial status (type default when omitted)")
	cmd.Flags().String("date", "", "Item date, YYYY-MM-DD (today when omitted)")
	cmd.Flags().String("decision", "", "Decision text (type decision)")
	cmd.Flags().String("context", "", "Decision context (type decision)")
	cmd.Flags().String("root-cause", "", "Root cause (type incident)")
	cmd.Flags().String("symptoms", "", "Symptoms (type incident)")
	cmd.Flags().String("resolution", "", "Resolution (type incident)")
	cmd.Flags().StringSlice("decisions", nil, "Decision list (type meeting)")
	cmd.Flags().String("commit-message", "", "Commit message (type snapshot)")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("title")

	return cmd
}

func itemFromFlags(cmd *cobra.Command) (knowledge.Item, error) {
	title, _ := cmd.Flags().GetString("title")
	tags, _ := cmd.Flags().GetStringSlice("tags")
	status, _ := cmd.Flags().GetString("status")

	meta := knowledge.Meta{Title: title, Tags: tags, Status: status}
	if dateStr, _ := cmd.Flags().GetString("date"); dateStr != "" {
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("invalid --date %q: %w", dateStr, err)
		}
		meta.Date = date
	}

	typeName, _ := cmd.Flags().GetString("type")
	switch strings.ToLower(typeName) {
	case "decision":
		decision, _ := cmd.Flags().GetString("decision")
		decisionCtx, _ := cmd.Flags().GetString("context")
		return &knowledge.Decision{Meta: meta, Decision: decision, Context: decisionCtx}, nil
	case "incident":
		rootCause, _ := cmd.Flags().GetString("root-cause")
		symptoms, _ := cmd.Flags().GetString("symptoms")
		resolution, _ := cmd.Flags().GetString("resolution")
		return &knowledge.Incident{Meta: meta, RootCause: rootCause, Symptoms: symptoms, Resolution: resolution}, nil
	case "meeting":
		decisions, _ := cmd.Flags().GetStringSlice("decisions")
		return &knowledge.MeetingRecord{Meta: meta, Decisions: decisions}, nil
	case "snapshot":
		commitMessage, _ := cmd.Flags().GetString("commit-message")
		return &knowledge.Snapshot{Meta: meta, CommitMessage: commitMessage}, nil
	default:
		return nil, fmt.Errorf("unknown --type %q (decision, incident, meeting, snapshot)", typeName)
	}
}

func parseTypes(names []string) ([]knowledge.ItemType, error) {
	types := make([]knowledge.ItemType, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(name) {
		case "decision":
			types = append(types, knowledge.TypeDecision)
		case "incident":
			types = append(types, knowledge.TypeIncident)
		case "meeting":
			types = append(types, knowledge.TypeMeetingRecord)
		case "snapshot":
			types = append(types, knowledge.TypeSnapshot)
		default:
			return nil, fmt.Errorf("unknown type %q", name)
		}
	}
	return types, nil
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Semantic search over knowledge items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			topK, _ := cmd.Flags().GetInt("top-k")
			typeNames, _ := cmd.Flags().GetStringSlice("types")
			tags, _ := cmd.Flags().GetStringSlice("tags")
			fromStr, _ := cmd.Flags().GetString("from")
			toStr, _ := cmd.Flags().GetString("to")

			types, err := parseTypes(typeNames)
			if err != nil {
				return err
			}

			ctx := context.Background()
			var results []search.ScoredItem
			if len(tags) == 0 && fromStr == "" && toStr == "" {
				results, err = db.SemanticSearch(ctx, args[0], topK, types)
			} else {
				filters := search.Filters{Tags: tags, Types: types, TopK: topK}
				if fromStr != "" {
					if filters.DateFrom, err = time.Parse("2006-01-02", fromStr); err != nil {
						return fmt.Errorf("invalid --from %q: %w", fromStr, err)
					}
				}
				if toStr != "" {
					if filters.DateTo, err = time.Parse("2006-01-02", toStr); err != nil {
						return fmt.Errorf("invalid --to %q: %w", toStr, err)
					}
				}
				results, err = db.FilteredSearch(ctx, args[0], filters)
			}
			if err != nil {
				return err
			}

			for _, r := range results {
				meta := r.Item.Common()
				fmt.Printf("%.3f  %-9s %s  %s\n", r.Similarity, meta.ID, meta.Title, strings.Join(meta.Tags, ","))
			}
			if len(results) == 0 {
				fmt.Println("No results.")
			}
			return nil
		},
	}

	cmd.Flags().Int("top-k", 10, "Maximum number of results")
	cmd.Flags().StringSlice("types", nil, "Restrict to item types")
	cmd.Flags().StringSlice("tags", nil, "Keep only items with one of these tags")
	cmd.Flags().String("from", "", "Earliest item date, YYYY-MM-DD")
	cmd.Flags().String("to", "", "Latest item date, YYYY-MM-DD")

	return cmd
}

func newBundleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle <query>",
		Short: "Build a token-budgeted context bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			maxTokens, _ := cmd.Flags().GetInt("max-tokens")
			if !cmd.Flags().Changed("max-tokens") {
				maxTokens = db.DefaultMaxTokens()
			}
			domains, _ := cmd.Flags().GetStringSlice("domains")

			result, err := db.BundleContext(context.Background(), args[0], maxTokens, domains)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().Int("max-tokens", 0, "Token budget (config default when omitted)")
	cmd.Flags().StringSlice("domains", nil, "Restrict to items tagged with one of these domains")

	return cmd
}

func newRelatedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "related <item-id>",
		Short: "List graph-connected items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			depth, _ := cmd.Flags().GetInt("depth")
			related, err := db.FindRelated(args[0], depth)
			if err != nil {
				return err
			}

			for _, r := range related {
				meta := r.Item.Common()
				fmt.Printf("%d hop(s)  %-12s %-9s %s\n", r.Distance, r.RelType, meta.ID, meta.Title)
			}
			if len(related) == 0 {
				fmt.Println("No related items.")
			}
			return nil
		},
	}

	cmd.Flags().Int("depth", 1, "Maximum traversal depth")
	return cmd
}

func newLinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link <from-id> <to-id>",
		Short: "Create a relationship between two items",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			relType, _ := cmd.Flags().GetString("type")
			if err := db.CreateRelationship(args[0], args[1], relType); err != nil {
				return err
			}
			fmt.Printf("✅ Linked %s -[%s]-> %s\n", args[0], relType, args[1])
			return nil
		},
	}

	cmd.Flags().String("type", "related_to", "Relationship type")
	return cmd
}

func newGraphCmd() *cobra.Command {
	graphCmd := &cobra.Command{
		Use:   "graph",
		Short: "Relationship graph operations",
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the graph as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			includeArchived, _ := cmd.Flags().GetBool("include-archived")
			maxNodes, _ := cmd.Flags().GetInt("max-nodes")

			result, err := db.ExportGraph(includeArchived, maxNodes)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	exportCmd.Flags().Bool("include-archived", false, "Include archived items")
	exportCmd.Flags().Int("max-nodes", 0, "Cap the node count, keeping the most referenced (0 = no cap)")

	graphCmd.AddCommand(exportCmd)
	return graphCmd
}

func newDecayCmd() *cobra.Command {
	decayCmd := &cobra.Command{
		Use:   "decay",
		Short: "Freshness decay and archival",
	}

	decayCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run one decay pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			result, err := db.RunDecayPass()
			if err != nil {
				return err
			}
			fmt.Printf("🧹 Scanned %d items, archived %d\n", result.Scanned, result.Archived)
			return nil
		},
	})

	decayCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show freshness statistics per type",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := db.DecayStats()
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	})

	return decayCmd
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Import items and relationships from a YAML seed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			result, err := db.ImportSeed(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("🌱 Imported %d items, %d relationships\n", result.Items, result.Relationships)
			return nil
		},
	}
}

// getEnvStr returns environment variable value or default
func getEnvStr(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns environment variable as int or default
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}
