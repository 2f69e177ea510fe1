package isolation_test

import (
	"testing"

	"github.com/kkloberdanz/judgerun/internal/isolation"
)

func validConfig() isolation.IsolationConfig {
	return isolation.IsolationConfig{Limits: isolation.DefaultLimitConfig()}
}

func TestDefaultLimitConfigValidates(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default limits to validate, got %v", err)
	}
}

func TestValidateRejectsNiceOutOfRange(t *testing.T) {
	for _, nice := range []int{-21, 20} {
		cfg := validConfig()
		cfg.Limits.Nice = nice
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected nice=%d to be rejected", nice)
		}
	}
}

func TestValidateAcceptsNiceBoundaries(t *testing.T) {
	for _, nice := range []int{-20, 19} {
		cfg := validConfig()
		cfg.Limits.Nice = nice
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected nice=%d to be accepted, got %v", nice, err)
		}
	}
}

func TestValidateRejectsBadTmpfsSize(t *testing.T) {
	for _, size := range []string{"", "five percent", "-5%", "5mb"} {
		cfg := validConfig()
		cfg.Limits.TmpfsSize = size
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected tmpfs size %q to be rejected", size)
		}
	}
}

func TestValidateAcceptsTmpfsSizeVariants(t *testing.T) {
	for _, size := range []string{"5%", "64m", "1g", "512k", "1024"} {
		cfg := validConfig()
		cfg.Limits.TmpfsSize = size
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected tmpfs size %q to be accepted, got %v", size, err)
		}
	}
}

func TestSeccompCompiledReflectsCompileSeccomp(t *testing.T) {
	cfg := validConfig()
	if cfg.SeccompCompiled() {
		t.Fatal("expected a fresh config to report no compiled filter")
	}
	if err := cfg.CompileSeccomp(); err != nil {
		t.Fatalf("compile seccomp: %v", err)
	}
	if !cfg.SeccompCompiled() {
		t.Fatal("expected SeccompCompiled to be true after CompileSeccomp succeeds")
	}
}
