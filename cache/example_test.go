package cache_test

import (
	"context"
	"fmt"

	"github.com/jonwraymond/sqlops/cache"
)

func ExampleResultCache_CacheResult() {
	rc := cache.NewResultCache(cache.NewMemoryStore(0), cache.Config{})
	defer rc.Close()
	ctx := context.Background()

	rc.CacheResult(ctx, "how many users?", "SELECT count(*) FROM users")

	sql, ok := rc.GetCachedResult(ctx, "how many users?")
	fmt.Println(sql, ok)

	_, ok = rc.GetCachedResult(ctx, "how many orders?")
	fmt.Println(ok)
	// Output:
	// SELECT count(*) FROM users true
	// false
}

func ExampleDefaultKeyer_Key() {
	k := cache.NewDefaultKeyer()
	fmt.Println(k.Key("sql-result", "SELECT 1"))
	// Output: sql-result:d87efb7c40fa5499e9af31ad41ec120af9b130fc982607486497d104cf66480a
}
