package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitAddr(t *testing.T) {
	host, port := splitAddr("cache:6380")
	assert.Equal(t, "cache", host)
	assert.Equal(t, 6380, port)

	host, port = splitAddr("localhost")
	assert.Equal(t, "localhost", host)
	assert.Equal(t, 6379, port)
}
