package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTelegramClientOutlivesLongPoll(t *testing.T) {
	assert.Greater(t, clientTimeout, time.Duration(pollTimeout)*time.Second)
}
