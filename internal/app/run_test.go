package app

import (
	"bytes"
	"testing"
)

// TestRun_ServeCommand_RequiresDatabase はserveコマンドがDB接続を試みることを検証する。
// テスト環境ではDB接続が失敗するため、エラーが返ることを許容する。
func TestRun_ServeCommand_RequiresDatabase(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		// CI/ローカルにDBがある場合はサーバーが即時終了しないため、ここに到達する可能性がある。
		// しかし通常テスト環境ではDB接続が失敗する。
		t.Log("Run(serve) succeeded - DB is available in test environment")
	}
}

// TestRun_WorkerCommand_RequiresRedis はworkerコマンドがREDIS_ADDRなしでは起動できないことを検証する。
func TestRun_WorkerCommand_RequiresRedis(t *testing.T) {
	setTestEnv(t)
	t.Setenv("REDIS_ADDR", "")

	var buf bytes.Buffer
	err := Run(&buf, []string{"worker"})
	if err == nil {
		t.Fatal("Run(worker) without REDIS_ADDR should return error")
	}
}

// TestRun_MigrateCommand_RequiresDatabase はmigrateコマンドがDB接続を試みることを検証する。
func TestRun_MigrateCommand_RequiresDatabase(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"migrate"})
	if err == nil {
		t.Log("Run(migrate) succeeded - DB is available in test environment")
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REGENERATE_SECRET", "")
	t.Setenv("S3_ENDPOINT", "")
	t.Setenv("S3_BUCKET", "")
	t.Setenv("S3_ACCESS_KEY", "")
	t.Setenv("S3_SECRET_KEY", "")

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("Run with missing env should return error")
	}
}
