package bgrid

import "testing"

func TestStoreConfig(t *testing.T) {
	c := NewStoreConfig("badger", map[string]interface{}{
		"Path":      "/tmp/models",
		"ReadOnly":  true,
		"CacheSize": "64 MB",
		"Workers":   int64(4),
	})
	if path, found, err := c.GetString("path"); err != nil || !found || path != "/tmp/models" {
		t.Errorf("GetString(path) = %q, %t, %v", path, found, err)
	}
	if ro, found, err := c.GetBool("readonly"); err != nil || !found || !ro {
		t.Errorf("GetBool(readonly) = %t, %t, %v", ro, found, err)
	}
	if n, found, err := c.GetBytes("cachesize"); err != nil || !found || n != 64000000 {
		t.Errorf("GetBytes(cachesize) = %d, %t, %v", n, found, err)
	}
	if n, found, err := c.GetInt("workers"); err != nil || !found || n != 4 {
		t.Errorf("GetInt(workers) = %d, %t, %v", n, found, err)
	}
	if _, found, _ := c.GetString("missing"); found {
		t.Errorf("expected missing key to be not found")
	}
	if _, _, err := c.GetInt("path"); err == nil {
		t.Errorf("expected type error reading string as int")
	}
}

func TestConvertToAbsolute(t *testing.T) {
	if got := ConvertToAbsolute("data/models", "/etc/bgrid/config.toml"); got != "/etc/bgrid/data/models" {
		t.Errorf("got %q", got)
	}
	if got := ConvertToAbsolute("/abs/path", "/etc/bgrid/config.toml"); got != "/abs/path" {
		t.Errorf("got %q", got)
	}
}
