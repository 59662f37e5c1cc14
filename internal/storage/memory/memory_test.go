package memory_test

import (
	"testing"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/storage/memory"
	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, memory.New())
}
