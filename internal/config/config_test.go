package config

import "testing"

func TestNewDefaults(t *testing.T) {
	cfg := New()
	if !cfg.PolicyFailClosed {
		t.Error("PolicyFailClosed should default to true")
	}
	if !cfg.EnableMACI || !cfg.MACIStrictMode {
		t.Error("MACI should default to enabled and strict")
	}
	if cfg.ImpactThreshold != 0.8 {
		t.Errorf("ImpactThreshold default = %v, want 0.8", cfg.ImpactThreshold)
	}
	if cfg.ConstitutionalHash == "" {
		t.Error("ConstitutionalHash should not be empty")
	}
}

func TestForTestingDisablesFeatures(t *testing.T) {
	cfg := ForTesting()
	if cfg.PolicyFailClosed || cfg.EnableMACI || cfg.UseKafka {
		t.Error("ForTesting should disable optional security features")
	}
}

func TestForProductionEnablesAll(t *testing.T) {
	cfg := ForProduction()
	if !cfg.PolicyFailClosed || !cfg.EnableMACI || !cfg.MACIStrictMode || !cfg.UseKafka || !cfg.UseRedisRegistry {
		t.Error("ForProduction should enable every security feature")
	}
}

func TestWithOptions(t *testing.T) {
	cfg := New(WithImpactThreshold(0.5), WithPolicyFailClosed(false))
	if cfg.ImpactThreshold != 0.5 {
		t.Errorf("ImpactThreshold = %v, want 0.5", cfg.ImpactThreshold)
	}
	if cfg.PolicyFailClosed {
		t.Error("PolicyFailClosed should be overridden to false")
	}
}

func TestFromYAMLOverlay(t *testing.T) {
	data := []byte(`
redis_url: redis://example:6380
impact_threshold: 0.65
policy_fail_closed: false
`)
	cfg, err := FromYAML(data)
	if err != nil {
		t.Fatalf("FromYAML error: %v", err)
	}
	if cfg.RedisURL != "redis://example:6380" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
	if cfg.ImpactThreshold != 0.65 {
		t.Errorf("ImpactThreshold = %v", cfg.ImpactThreshold)
	}
	if cfg.PolicyFailClosed {
		t.Error("PolicyFailClosed should be overridden to false by YAML")
	}
	if !cfg.EnableMACI {
		t.Error("EnableMACI should keep its default since YAML omitted it")
	}
}
