package db

import (
	"encoding/json"
	"testing"
)

func TestFeatureJSON(t *testing.T) {
	info := DatabaseInfo{
		DbType:            ImplPebble,
		SupportedFeatures: []Feature{FeatureSet, FeatureIterate, FeatureBatch},
	}
	data, err := json.Marshal(info)
	if err != nil {
		t.Fatal(err)
	}

	var decoded DatabaseInfo
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to decode %s: %v", data, err)
	}
	if len(decoded.SupportedFeatures) != 3 {
		t.Fatalf("got %v", decoded.SupportedFeatures)
	}
	for i, f := range info.SupportedFeatures {
		if decoded.SupportedFeatures[i] != f {
			t.Errorf("feature %d = %v, want %v", i, decoded.SupportedFeatures[i], f)
		}
	}
}

func TestFeatureUnknownName(t *testing.T) {
	var f Feature
	if err := f.UnmarshalText([]byte("Teleport")); err == nil {
		t.Error("expected an error for an unknown feature")
	}
	for _, feature := range AllFeatures {
		if err := f.UnmarshalText([]byte(feature.String())); err != nil || f != feature {
			t.Errorf("%s: got %v, %v", feature, f, err)
		}
	}
}
