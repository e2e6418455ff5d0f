package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
		absent   []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindContainerFormat,
				Path:   "app.bin",
				Module: 2,
				Detail: "incomplete module header",
			},
			contains: []string{"[load]", "container_format", "app.bin", "module #2", "incomplete module header"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase:  PhaseRuntime,
				Kind:   KindRuntimeCreation,
				Module: NoModule,
			},
			contains: []string{"[runtime]", "runtime_creation"},
			absent:   []string{"module #"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseContext,
				Kind:   KindContextCreation,
				Detail: "create context",
				Cause:  errors.New("out of memory"),
				Module: NoModule,
			},
			contains: []string{"[context]", "context_creation", "create context", "caused by", "out of memory"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
			for _, s := range tt.absent {
				if strings.Contains(msg, s) {
					t.Errorf("error message %q should not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := FileOpen("missing.bin", cause)

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := ContainerFormat("a.bin", 0, "truncated payload")

	if !err.Is(&Error{Phase: PhaseLoad, Kind: KindContainerFormat}) {
		t.Error("Is should match same phase and kind")
	}

	if err.Is(&Error{Phase: PhaseExecute, Kind: KindContainerFormat}) {
		t.Error("Is should not match different phase")
	}

	if err.Is(&Error{Phase: PhaseLoad, Kind: KindFileOpen}) {
		t.Error("Is should not match different kind")
	}

	target := &Error{Phase: PhaseLoad, Kind: KindContainerFormat}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseLoad, KindContainerFormat).
		Path("app.bin").
		Module(4).
		Value(uint64(0)).
		Cause(cause).
		Detail("module size %d bytes", 0).
		Build()

	if err.Phase != PhaseLoad {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseLoad)
	}
	if err.Kind != KindContainerFormat {
		t.Errorf("Kind = %v, want %v", err.Kind, KindContainerFormat)
	}
	if err.Path != "app.bin" {
		t.Errorf("Path = %v, want app.bin", err.Path)
	}
	if err.Module != 4 {
		t.Errorf("Module = %v, want 4", err.Module)
	}
	if err.Value != uint64(0) {
		t.Errorf("Value = %v, want 0", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "module size 0 bytes" {
		t.Errorf("Detail = %v, want 'module size 0 bytes'", err.Detail)
	}
}

func TestBuilder_DefaultsToNoModule(t *testing.T) {
	err := New(PhaseExecute, KindScriptException).Build()
	if err.Module != NoModule {
		t.Errorf("Module = %d, want NoModule", err.Module)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("FileOpen", func(t *testing.T) {
		err := FileOpen("x.bin", errors.New("no such file"))
		if err.Kind != KindFileOpen || err.Phase != PhaseLoad {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
	})

	t.Run("ModuleSize", func(t *testing.T) {
		err := ModuleSize("x.bin", 1, 104857601, 104857600)
		if err.Kind != KindContainerFormat {
			t.Errorf("Kind = %v, want %v", err.Kind, KindContainerFormat)
		}
		if !strings.Contains(err.Detail, "104857601") {
			t.Errorf("Detail = %v, should contain size", err.Detail)
		}
		if err.Value != uint64(104857601) {
			t.Errorf("Value = %v", err.Value)
		}
	})

	t.Run("RuntimeCreation", func(t *testing.T) {
		err := RuntimeCreation(errors.New("boom"))
		if err.Kind != KindRuntimeCreation || err.Phase != PhaseRuntime {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
	})

	t.Run("ContextCreation", func(t *testing.T) {
		err := ContextCreation(nil)
		if err.Kind != KindContextCreation || err.Phase != PhaseContext {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
	})

	t.Run("Configuration", func(t *testing.T) {
		err := Configuration(PhaseExecute, "no entry module found")
		if err.Kind != KindConfiguration {
			t.Errorf("Kind = %v, want %v", err.Kind, KindConfiguration)
		}
	})

	t.Run("EventLoopResidual", func(t *testing.T) {
		err := EventLoopResidual(1)
		if err.Kind != KindEventLoopResidual || err.Value != 1 {
			t.Errorf("got %v value %v", err.Kind, err.Value)
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		err := InvalidInput(PhaseConfig, "unknown mode")
		if err.Kind != KindInvalidInput {
			t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidInput)
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		cause := errors.New("inner")
		err := Wrap(PhaseLoop, KindEventLoopResidual, cause, "drain")
		if !errors.Is(err, cause) {
			t.Error("Wrap should keep the cause in the chain")
		}
	})
}
