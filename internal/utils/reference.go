package utils

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	refRand   = rand.New(rand.NewSource(time.Now().UnixNano()))
	refRandMu sync.Mutex
)

// GenerateReference generates a unique reference for money movements,
// e.g. WDR_20260901_K3F9Q2ZR
func GenerateReference(prefix string) string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	refRandMu.Lock()
	result := make([]byte, 8)
	for i := range result {
		result[i] = charset[refRand.Intn(len(charset))]
	}
	refRandMu.Unlock()

	timestamp := time.Now().Format("20060102")
	return fmt.Sprintf("%s_%s_%s", prefix, timestamp, string(result))
}
