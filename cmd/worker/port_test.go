package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsPort(t *testing.T) {
	assert.Equal(t, "8082", metricsPort("8081"))
	assert.Equal(t, "9091", metricsPort(""))
	assert.Equal(t, "9091", metricsPort("http"))
}
