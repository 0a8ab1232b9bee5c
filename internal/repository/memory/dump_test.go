package memory

import (
	"testing"

	"github.com/dtroode/ttldump/internal/model"
	"github.com/dtroode/ttldump/internal/repository/repotest"
)

func TestDumpRepository(t *testing.T) {
	repotest.RunDumpStoreTests(t, func(t *testing.T) model.DumpStore {
		return NewDumpRepository()
	})
}
