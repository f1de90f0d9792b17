package worker

import (
	"os"
	"testing"

	"example.com/activityfeed/internal/logger"
)

func TestMain(m *testing.M) {
	logg = logger.NewNop()
	os.Exit(m.Run())
}
