package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	internal_http "github.com/koreops-ai/sas-api/internal/http"
	"github.com/koreops-ai/sas-api/internal/log"
	internal_storage "github.com/koreops-ai/sas-api/internal/storage"
	"github.com/koreops-ai/sas-api/pkg/modules"
	"github.com/koreops-ai/sas-api/pkg/notify"
	"github.com/koreops-ai/sas-api/pkg/queue"
	"github.com/koreops-ai/sas-api/pkg/scheduler"
	"github.com/spf13/cobra"
)

// SetupCLI registers all orchestrator commands on the root command.
func SetupCLI(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("db", "", "Database connection string")

	createCmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a workflow with the given module types",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			sched, store := mustScheduler(cmd)
			defer store.Close()
			owner, _ := cmd.Flags().GetString("owner")
			review, _ := cmd.Flags().GetBool("review")
			queued, _ := cmd.Flags().GetBool("queue")
			priority, _ := cmd.Flags().GetInt("priority")
			types, _ := cmd.Flags().GetStringSlice("modules")
			if len(types) == 0 {
				types = modules.Catalog
			}
			id, err := sched.CreateWorkflow(args[0], owner, types, review)
			if err != nil {
				log.GetLogger().Errorf("Failed to create workflow: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to create workflow: %v\n", err)
				os.Exit(1)
			}
			if queued {
				q := queue.NewService(store, log.GetLogger())
				if _, err := q.Enqueue(context.Background(), id, types, priority); err != nil {
					log.GetLogger().Errorf("Failed to enqueue units: %v", err)
					fmt.Fprintf(os.Stderr, "Error: failed to enqueue units: %v\n", err)
					os.Exit(1)
				}
			}
			fmt.Fprintf(os.Stdout, "Created workflow '%s' with ID %d\n", args[0], id)
		},
	}
	createCmd.Flags().String("owner", "", "Workflow owner identifier")
	createCmd.Flags().Bool("review", false, "Pause for human review after each unit")
	createCmd.Flags().Bool("queue", false, "Enqueue units for out-of-process workers")
	createCmd.Flags().Int("priority", 0, "Queue priority, higher runs first")
	createCmd.Flags().StringSlice("modules", nil, "Module types (default: full catalog)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all workflows",
		Run: func(cmd *cobra.Command, args []string) {
			sched, store := mustScheduler(cmd)
			defer store.Close()
			workflows, err := sched.ListWorkflows()
			if err != nil {
				log.GetLogger().Errorf("Failed to list workflows: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to list workflows: %v\n", err)
				os.Exit(1)
			}
			if len(workflows) == 0 {
				fmt.Fprintf(os.Stdout, "No workflows found.\n")
				return
			}
			fmt.Fprintf(os.Stdout, "Workflows:\n")
			for _, wf := range workflows {
				fmt.Fprintf(os.Stdout, "- ID: %d, Name: %s, Status: %s, Progress: %d%%, Created: %s\n",
					wf.ID, wf.Name, wf.Status, wf.Progress, wf.CreatedAt.Format(time.RFC3339))
			}
		},
	}

	advanceCmd := &cobra.Command{
		Use:   "advance [workflow-id]",
		Short: "Run one scheduling pass for a workflow",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			sched, store := mustScheduler(cmd)
			defer store.Close()
			id := mustID(args[0])
			result, err := sched.Advance(context.Background(), id)
			if err != nil {
				log.GetLogger().Errorf("Advance failed: %v", err)
				fmt.Fprintf(os.Stderr, "Error: advance failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Executed: %v, Failed: %v, Complete: %t, AwaitingReview: %t, Progress: %d%%\n",
				result.Executed, result.Failed, result.Complete, result.AwaitingReview, result.Progress)
		},
	}

	resolveCmd := &cobra.Command{
		Use:   "resolve [checkpoint-id] [action]",
		Short: "Resolve a pending checkpoint (APPROVE_ALL, APPROVE_SELECTED, REQUEST_REVISION, REJECT)",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			sched, store := mustScheduler(cmd)
			defer store.Close()
			actor, _ := cmd.Flags().GetString("actor")
			comment, _ := cmd.Flags().GetString("comment")
			resolution, err := sched.Resolve(context.Background(), args[0], actor, strings.ToUpper(args[1]), comment, nil)
			if err != nil {
				log.GetLogger().Errorf("Failed to resolve checkpoint: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to resolve checkpoint: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Checkpoint %s resolved as %s\n", resolution.Checkpoint.ID, resolution.Checkpoint.Status)
			if resolution.Continuation != nil {
				fmt.Fprintf(os.Stdout, "Continuation executed: %v, Complete: %t, Progress: %d%%\n",
					resolution.Continuation.Executed, resolution.Continuation.Complete, resolution.Continuation.Progress)
			}
		},
	}
	resolveCmd.Flags().String("actor", "", "Reviewer identity")
	resolveCmd.Flags().String("comment", "", "Review comment")

	cancelCmd := &cobra.Command{
		Use:   "cancel [workflow-id]",
		Short: "Cancel a non-terminal workflow",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			sched, store := mustScheduler(cmd)
			defer store.Close()
			id := mustID(args[0])
			if err := sched.Cancel(context.Background(), id); err != nil {
				log.GetLogger().Errorf("Failed to cancel workflow: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to cancel workflow: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Cancelled workflow %d\n", id)
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Run: func(cmd *cobra.Command, args []string) {
			sched, store := mustScheduler(cmd)
			defer store.Close()
			feed := notify.NewFeed(store, notify.NewStoreNotifier(store, log.GetLogger()))
			q := queue.NewService(store, log.GetLogger())
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go feed.Run(ctx, notify.DefaultHeartbeatInterval)
			port, _ := cmd.Flags().GetString("port")
			if err := internal_http.StartServer(port, sched, q, feed); err != nil {
				log.GetLogger().Errorf("Server stopped: %v", err)
				os.Exit(1)
			}
		},
	}
	serveCmd.Flags().String("port", "8080", "Port to listen on")

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a queue worker processing claimed units",
		Run: func(cmd *cobra.Command, args []string) {
			sched, store := mustScheduler(cmd)
			defer store.Close()
			workerID, _ := cmd.Flags().GetString("id")
			if workerID == "" {
				workerID = "worker-" + uuid.NewString()[:8]
			}
			q := queue.NewService(store, log.GetLogger())
			w := queue.NewWorker(workerID, q, sched, log.GetLogger())
			if err := w.Run(context.Background()); err != nil {
				log.GetLogger().Infof("Worker stopped: %v", err)
			}
		},
	}
	workerCmd.Flags().String("id", "", "Worker identity (default: random)")

	rootCmd.AddCommand(createCmd, listCmd, advanceCmd, resolveCmd, cancelCmd, serveCmd, workerCmd)
}

func mustScheduler(cmd *cobra.Command) (*scheduler.Scheduler, *internal_storage.PostgresStore) {
	dbConnStr, err := cmd.Flags().GetString("db")
	if err != nil {
		log.GetLogger().Errorf("Error retrieving db flag: %v", err)
		os.Exit(1)
	}
	store, err := internal_storage.NewPostgresStore(dbConnStr)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	notifier := notify.NewStoreNotifier(store, log.GetLogger())
	sched := scheduler.NewScheduler(store, modules.NewStubRegistry(), notifier, log.GetLogger())
	return sched, store
}

func mustID(raw string) int64 {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing id as number: %v\n", err)
		os.Exit(1)
	}
	return id
}
