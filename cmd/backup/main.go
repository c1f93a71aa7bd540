package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"kinship/internal/config"
	"kinship/internal/database"
	"kinship/internal/logging"
	"kinship/internal/repository"
	"kinship/internal/service"
)

func main() {
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	rosterCmd := flag.NewFlagSet("roster", flag.ExitOnError)

	exportOutput := exportCmd.String("output", "", "Output file path (default: kinship_backup_YYYYMMDD_HHMMSS.json)")

	importInput := importCmd.String("input", "", "Input file path (required)")
	importClear := importCmd.Bool("clear", false, "Clear existing data before import (WARNING: destructive)")
	importYes := importCmd.Bool("yes", false, "Skip the confirmation prompt for -clear")

	rosterOutput := rosterCmd.String("output", "", "Output file path (default: people-YYYYMMDD.xlsx)")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()
	logger, err := logging.NewLogger(cfg.LogLevel, "console", "kinship-backup")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	db, err := database.Open(cfg)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	// the schema must be current before rows are read or written
	if _, err := db.RunMigrations(cfg.MigrationsPath); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	backupService := service.NewBackupService(db, logger)

	switch os.Args[1] {
	case "export":
		_ = exportCmd.Parse(os.Args[2:])
		if err := handleExport(backupService, *exportOutput, logger); err != nil {
			logger.Fatal("export failed", zap.Error(err))
		}

	case "import":
		_ = importCmd.Parse(os.Args[2:])
		if *importInput == "" {
			fmt.Println("Error: -input flag is required")
			importCmd.PrintDefaults()
			os.Exit(1)
		}
		if *importClear && !*importYes && !confirm(os.Stdin, os.Stdout) {
			logger.Info("import cancelled")
			return
		}
		if err := handleImport(backupService, *importInput, *importClear, logger); err != nil {
			logger.Fatal("import failed", zap.Error(err))
		}

	case "roster":
		_ = rosterCmd.Parse(os.Args[2:])
		if err := handleRoster(db, cfg, *rosterOutput, logger); err != nil {
			logger.Fatal("roster export failed", zap.Error(err))
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

// createOutput creates path and its parent directory
func createOutput(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return os.Create(path)
}

func handleExport(backupService *service.BackupService, outputPath string, logger *zap.Logger) error {
	if outputPath == "" {
		outputPath = fmt.Sprintf("kinship_backup_%s.json", time.Now().Format("20060102_150405"))
	}

	f, err := createOutput(outputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	logger.Info("exporting database", zap.String("output", outputPath))
	if err := backupService.Export(f); err != nil {
		return err
	}

	info, err := f.Stat()
	if err != nil {
		return err
	}
	logger.Info("export complete", zap.String("output", outputPath), zap.Int64("bytes", info.Size()))
	return nil
}

func handleImport(backupService *service.BackupService, inputPath string, clearData bool, logger *zap.Logger) error {
	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	logger.Info("importing database", zap.String("input", inputPath), zap.Bool("clear", clearData))
	if err := backupService.Import(f, clearData); err != nil {
		return err
	}

	stats, err := backupService.Stats()
	if err != nil {
		return err
	}
	fields := make([]zap.Field, 0, len(stats))
	for _, s := range stats {
		fields = append(fields, zap.Int(s.Table, s.Rows))
	}
	logger.Info("import complete", fields...)
	return nil
}

// handleRoster writes every person to a spreadsheet, bypassing account
// permissions since the tool already has direct database access
func handleRoster(db *database.DB, cfg *config.Config, outputPath string, logger *zap.Logger) error {
	now := time.Now()
	if outputPath == "" {
		outputPath = fmt.Sprintf("people-%s.xlsx", now.Format("20060102"))
	}

	people, err := repository.NewPersonRepository(db).ListAllPeople()
	if err != nil {
		return err
	}

	f, err := createOutput(outputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := service.WriteRoster(f, people, cfg.AgeBrackets, now); err != nil {
		return err
	}
	logger.Info("roster written", zap.String("output", outputPath), zap.Int("people", len(people)))
	return nil
}

// confirm asks before a destructive import; only "yes" proceeds
func confirm(in io.Reader, out io.Writer) bool {
	fmt.Fprint(out, "WARNING: This will delete all existing data. Type 'yes' to confirm: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.TrimSpace(line) == "yes"
}

func printUsage() {
	fmt.Println("Kinship Database Backup Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  backup export [options]    Export database to JSON file")
	fmt.Println("  backup import [options]    Import database from JSON file")
	fmt.Println("  backup roster [options]    Write every person to an XLSX roster")
	fmt.Println()
	fmt.Println("Export Options:")
	fmt.Println("  -output <file>    Output file path (default: kinship_backup_YYYYMMDD_HHMMSS.json)")
	fmt.Println()
	fmt.Println("Import Options:")
	fmt.Println("  -input <file>     Input file path (required)")
	fmt.Println("  -clear            Clear existing data before import (WARNING: destructive)")
	fmt.Println("  -yes              Do not ask for confirmation with -clear")
	fmt.Println()
	fmt.Println("Roster Options:")
	fmt.Println("  -output <file>    Output file path (default: people-YYYYMMDD.xlsx)")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  DB_TYPE          Database type: sqlite, postgres, or mysql (default: sqlite)")
	fmt.Println("  DB_PATH          SQLite database path (default: ./kinship.db)")
	fmt.Println("  DATABASE_URL     PostgreSQL or MySQL connection URL")
}
