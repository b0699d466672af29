package queue

import (
	"math/rand"
)

const randASCII = "abcdefghijklmnopqrstuvwxyz0123456789"

// randomString is used for client IDs; brokers kick out older client on ID collision
func randomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = randASCII[rand.Intn(len(randASCII))]
	}
	return string(b)
}
