// Package app はサブコマンドごとの依存関係の組み立てと起動を行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/hitoshi/sentilens/internal/auth"
	"github.com/hitoshi/sentilens/internal/config"
	"github.com/hitoshi/sentilens/internal/database"
	"github.com/hitoshi/sentilens/internal/logger"
	"github.com/hitoshi/sentilens/internal/model"
	"github.com/hitoshi/sentilens/internal/repository"
	"github.com/hitoshi/sentilens/internal/user"
)

// pingTimeout は起動時のデータベース疎通確認のタイムアウト。
const pingTimeout = 5 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ったJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでロガーを作り直す
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	return cfg, logger.SetupDefault(w, level), nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg, log)
	case CommandWorker:
		return runWorker(cfg, log)
	case CommandMigrate:
		return runMigrate(cfg, log, args[1:])
	case CommandPromote:
		if len(args) < 2 {
			return errors.New("usage: sentilens promote <username>")
		}
		return runPromote(cfg, log, args[1])
	default:
		return runServe(cfg, log)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// runMigrate はデータベースマイグレーションを実行する。
// 引数なしの場合は未適用のマイグレーションをすべて適用し、
// "down N" の場合はN段だけ戻す。
func runMigrate(cfg *config.Config, log *slog.Logger, args []string) error {
	steps, err := parseMigrateArgs(args)
	if err != nil {
		return err
	}

	log.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Int("rollback_steps", steps),
	)

	if steps > 0 {
		if err := database.RollbackMigrations(cfg.DatabaseURL, steps); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		log.Info("database migrations rolled back", slog.Int("steps", steps))
		return nil
	}

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("database migrations completed successfully")
	return nil
}

// parseMigrateArgs はmigrateサブコマンドの引数を解析し、戻す段数を返す。
// 0は全件適用を意味する。
func parseMigrateArgs(args []string) (int, error) {
	switch {
	case len(args) == 0 || args[0] == "up":
		return 0, nil
	case args[0] == "down" && len(args) == 2:
		steps, err := strconv.Atoi(args[1])
		if err != nil || steps < 1 {
			return 0, fmt.Errorf("invalid rollback steps: %q", args[1])
		}
		return steps, nil
	default:
		return 0, errors.New("usage: sentilens migrate [up | down <steps>]")
	}
}

// runPromote は指定ユーザーのロールをadminに変更する。
func runPromote(cfg *config.Config, log *slog.Logger, username string) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return promoteUser(context.Background(), repository.NewPostgresUserRepo(db), auth.NewBcryptHasher(cfg.BcryptCost), log, username)
}

// promoteUser はユーザー名で検索したユーザーをadminに昇格させる。
func promoteUser(ctx context.Context, repo repository.UserRepository, hasher user.PasswordHasher, log *slog.Logger, username string) error {
	u, err := repo.FindByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil {
		return fmt.Errorf("user not found: %s", username)
	}

	role := model.RoleAdmin
	if _, err := user.NewService(repo, hasher, log).Update(ctx, u.ID, user.UpdateParams{Role: &role}); err != nil {
		return fmt.Errorf("failed to promote user: %w", err)
	}

	log.Info("user promoted to admin", slog.String("user_id", u.ID))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
