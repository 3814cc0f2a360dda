package repository_test

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"

	"github.com/scentflow/scentflow-backend/pkg/logger"
	"github.com/scentflow/scentflow-backend/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	ctx := context.Background()

	if !testing.Short() {
		var err error
		suite, err = testutil.NewIntegrationSuite(ctx)
		if err != nil {
			log.Fatalf("failed to create integration suite: %v", err)
		}
	}

	code := m.Run()
	if suite != nil {
		suite.Cleanup(ctx)
		testutil.TerminateContainer(ctx)
	}
	os.Exit(code)
}

func testLogger() *logger.Logger {
	return logger.New("test", "test")
}

func strPtr(s string) *string {
	return &s
}
