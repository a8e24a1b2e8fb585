package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	appconfig "statement-ingestion-service/cmd/ingester/config"
	"statement-ingestion-service/internal/api"
	commitpkg "statement-ingestion-service/internal/commit"
	"statement-ingestion-service/internal/patterns"
	"statement-ingestion-service/internal/pipeline"
	"statement-ingestion-service/internal/storage"
	"statement-ingestion-service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the serve command
var (
	listenAddr      string
	serveDBPath     string
	serveProfile    string
	serveWindow     int
	serveAccountID  int64
	serveBankID     int64
	serveOpeningBal string
	maxUploadSizeMB int
)

// accountEntry is the config-file form of a served account
type accountEntry struct {
	ID             int64  `mapstructure:"id"`
	BankID         int64  `mapstructure:"bank_id"`
	Name           string `mapstructure:"name"`
	OpeningBalance string `mapstructure:"opening_balance"`
}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the statement ingestion HTTP API",
	Long: `Serve starts an HTTP server exposing statement upload with preview,
batch commit and read access to classifications and committed transactions.

Accounts are loaded from the 'accounts' list in the config file when present;
otherwise a single account is seeded from the --account flags.

Examples:
  ingester serve --listen :8080 --db transactions.db --account 1 --bank 1
  ingester serve --config ingester.yaml --db transactions.db`,

	PreRunE: validateServeFlags,
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", ":8080", "address to listen on")
	serveCmd.Flags().StringVar(&serveDBPath, "db", "", "SQLite database path (default: in-memory store)")
	serveCmd.Flags().StringVar(&serveProfile, "profile", "standard", "statement profile: standard, semicolon")
	serveCmd.Flags().IntVarP(&serveWindow, "reversal-window", "w", 0, "rows to look ahead when pairing reversals")
	serveCmd.Flags().IntVar(&maxUploadSizeMB, "max-upload-mb", 25, "maximum statement upload size in megabytes")

	// Single-account fallback when no config file lists accounts
	serveCmd.Flags().Int64Var(&serveAccountID, "account", 0, "bank account id to serve")
	serveCmd.Flags().Int64Var(&serveBankID, "bank", 0, "bank id the account belongs to")
	serveCmd.Flags().StringVar(&serveOpeningBal, "opening-balance", "0", "account opening balance")

	viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag("db", serveCmd.Flags().Lookup("db"))
	viper.BindPFlag("max-upload-mb", serveCmd.Flags().Lookup("max-upload-mb"))
}

func validateServeFlags(cmd *cobra.Command, args []string) error {
	if serveWindow < 0 {
		return fmt.Errorf("reversal window cannot be negative")
	}
	if maxUploadSizeMB <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}
	if !viper.IsSet("accounts") && serveAccountID <= 0 {
		return fmt.Errorf("either an 'accounts' config list or --account/--bank flags are required")
	}
	if serveAccountID > 0 && serveBankID <= 0 {
		return fmt.Errorf("--bank is required with --account")
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	loggerConfig := appconfig.CreateLoggerConfig(viper.GetBool("verbose"), viper.GetString("log-format"))
	log, err := logger.NewLogger(loggerConfig)
	if err != nil {
		return err
	}
	logger.SetGlobalLogger(log)
	serveLog := log.WithComponent("server")

	accounts, err := buildAccountRegistry()
	if err != nil {
		return err
	}

	parserConfig, err := appconfig.CreateParserConfig(serveProfile, "")
	if err != nil {
		return err
	}

	registry := patterns.NewDefaultRegistry()

	p, err := pipeline.New(registry, accounts, appconfig.CreatePipelineConfig(parserConfig, serveWindow))
	if err != nil {
		return err
	}

	var (
		store  commitpkg.Store
		lister api.TransactionLister
	)
	if serveDBPath != "" {
		sqliteStore, err := storage.NewSQLiteStore(serveDBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer sqliteStore.Close()
		store, lister = sqliteStore, sqliteStore
		serveLog.WithField("path", serveDBPath).Info("Using SQLite store")
	} else {
		memStore := storage.NewMemoryStore()
		store, lister = memStore, memStore
		serveLog.Warn("No --db given, committed transactions are kept in memory only")
	}

	writer, err := commitpkg.NewWriter(store)
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		AppName:   "statement-ingestion-service",
		BodyLimit: maxUploadSizeMB * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	api.NewHandler(p, writer, registry, lister).Register(app)

	// Shut down cleanly on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		serveLog.Info("Shutting down")
		_ = app.Shutdown()
	}()

	serveLog.WithField("addr", listenAddr).Info("Starting HTTP server")
	return app.Listen(listenAddr)
}

// buildAccountRegistry loads accounts from the config file when present,
// falling back to the single account described by flags
func buildAccountRegistry() (*pipeline.StaticAccountRegistry, error) {
	accounts := pipeline.NewStaticAccountRegistry()

	if viper.IsSet("accounts") {
		var entries []accountEntry
		if err := viper.UnmarshalKey("accounts", &entries); err != nil {
			return nil, fmt.Errorf("invalid 'accounts' configuration: %w", err)
		}
		if len(entries) == 0 {
			return nil, fmt.Errorf("'accounts' configuration list is empty")
		}
		for _, entry := range entries {
			account, err := appconfig.CreateAccount(entry.ID, entry.BankID, entry.OpeningBalance)
			if err != nil {
				return nil, fmt.Errorf("account %d: %w", entry.ID, err)
			}
			if entry.Name != "" {
				account.Name = entry.Name
			}
			accounts.AddAccount(account)
		}
		return accounts, nil
	}

	account, err := appconfig.CreateAccount(serveAccountID, serveBankID, serveOpeningBal)
	if err != nil {
		return nil, err
	}
	accounts.AddAccount(account)
	return accounts, nil
}
