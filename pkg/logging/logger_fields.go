package logging

import (
	"time"
)

func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Error records err under "error". A nil error logs as null.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// NVS field helpers

func Component(name string) Field {
	return String("component", name)
}

func Partition(name string) Field {
	return String("partition", name)
}

func Key(key string) Field {
	return String("key", key)
}

func Sector(n uint32) Field {
	return Uint64("sector", uint64(n))
}

// Address takes the formatted form, "sector:0xoffset".
func Address(a string) Field {
	return String("address", a)
}

func Bytes(n int) Field {
	return Int("bytes", n)
}

func Operation(op string) Field {
	return String("operation", op)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}

func Path(p string) Field {
	return String("path", p)
}
