package config

import (
	"testing"
	"time"
)

// Redis is optional: with REDIS_ADDRESS unset no client is ever created, and
// every helper must still answer safely against the nil client.
func TestRedisHelpersTolerateAbsentRedis(t *testing.T) {
	if rdb != nil {
		t.Skip("redis client is initialized; nil-client path not reachable")
	}

	member, err := IsRedisSetMember("Tokens:1", "token")
	if err != nil {
		t.Fatalf("IsRedisSetMember: %v", err)
	}
	if !member {
		t.Fatal("IsRedisSetMember must treat tokens as live when redis is absent")
	}

	var out map[string]string
	hit, err := GetRedisObject("summary:1", &out)
	if err != nil {
		t.Fatalf("GetRedisObject: %v", err)
	}
	if hit {
		t.Fatal("GetRedisObject must miss when redis is absent")
	}

	if err := SetRedisObject("summary:1", map[string]string{"a": "b"}, time.Minute); err != nil {
		t.Fatalf("SetRedisObject: %v", err)
	}
	if _, ok, err := GetRedisValue("k"); err != nil || ok {
		t.Fatalf("GetRedisValue: ok=%v err=%v", ok, err)
	}
	if err := SetRedisValue("k", "v", time.Minute); err != nil {
		t.Fatalf("SetRedisValue: %v", err)
	}
	if err := AddRedisSet("Tokens:1", "token"); err != nil {
		t.Fatalf("AddRedisSet: %v", err)
	}
	if err := RemoveRedisSetMember("Tokens:1", "token"); err != nil {
		t.Fatalf("RemoveRedisSetMember: %v", err)
	}
	if err := RemoveRedisKey("k", "summary:1"); err != nil {
		t.Fatalf("RemoveRedisKey: %v", err)
	}
	if GetRedisLock() != nil {
		t.Fatal("lock client must be nil until redis connects")
	}
}
