package testing

import (
	"fmt"
	"github.com/ValentinKolb/netlevel/lib/db"
	"math/rand"
	"testing"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementation
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Set", func(b *testing.B) {
			benchmarkSet(b, factory(b))
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, factory(b))
		})

		b.Run("Iterate100", func(b *testing.B) {
			benchmarkIterate(b, factory(b), 100)
		})

		b.Run("BatchDelete100", func(b *testing.B) {
			benchmarkBatchDelete(b, factory(b), 100)
		})
	})
}

func benchmarkSet(b *testing.B, database db.KVDB) {
	defer database.Close()

	value := make([]byte, 128)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := database.Set([]byte(fmt.Sprintf("key-%d", i)), value); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkGet(b *testing.B, database db.KVDB) {
	defer database.Close()

	const n = 1000
	for i := 0; i < n; i++ {
		_ = database.Set([]byte(fmt.Sprintf("key-%d", i)), []byte("value"))
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := database.Get([]byte(fmt.Sprintf("key-%d", rand.Intn(n)))); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkIterate(b *testing.B, database db.KVDB, n int) {
	defer database.Close()

	for i := 0; i < n; i++ {
		_ = database.Set([]byte(fmt.Sprintf("key-%05d", i)), []byte("value"))
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		it, err := database.NewIterator(db.IterOptions{})
		if err != nil {
			b.Fatal(err)
		}
		for it.Next() {
			_, _ = it.Value()
		}
		_ = it.Close()
	}
}

func benchmarkBatchDelete(b *testing.B, database db.KVDB, n int) {
	defer database.Close()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		for j := 0; j < n; j++ {
			_ = database.Set([]byte(fmt.Sprintf("key-%05d", j)), []byte("value"))
		}
		b.StartTimer()

		batch := database.NewBatch()
		for j := 0; j < n; j++ {
			_ = batch.Delete([]byte(fmt.Sprintf("key-%05d", j)))
		}
		if err := batch.Commit(); err != nil {
			b.Fatal(err)
		}
		_ = batch.Close()
	}
}
