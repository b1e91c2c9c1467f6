package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
)

func TestCheckHealth(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	brokers := map[string]BrokerCheck{
		"rabbitmq": func(context.Context) error { return nil },
		"kafka":    func(context.Context) error { return errors.New("no brokers") },
	}

	status := CheckHealth(context.Background(), []*redis.Client{client}, nil, brokers)

	assert.Equal(t, []bool{true}, status.Redis)
	assert.False(t, status.Mongo)
	assert.True(t, status.Brokers["rabbitmq"])
	assert.False(t, status.Brokers["kafka"])
	assert.False(t, status.Healthy())
	assert.Equal(t, status, GetHealthStatus())
}

func TestHealthStatus_Healthy(t *testing.T) {
	h := HealthStatus{Mongo: true, Redis: []bool{true, true}, Brokers: map[string]bool{"rabbitmq": true}}
	assert.True(t, h.Healthy())

	h.Redis[1] = false
	assert.False(t, h.Healthy())
}
