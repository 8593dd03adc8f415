package vm

import (
	"context"
	"errors"
	"testing"
)

const askEffect = `effect Ask {
	ask(prompt: str) -> int;
	tell(msg);
}
`

func TestHandlerResumes(t *testing.T) {
	src := askEffect + `fn main() {
		handle {
			perform Ask.tell("hi");
			let a = perform Ask.ask("first");
			let b = perform Ask.ask("second");
			a + b
		} with Ask {
			ask(prompt, k) { resume k(len(prompt)) }
			tell(msg, k) { resume k }
		}
	}`
	expectRepr(t, src, "11")
}

func TestResumeReturnsBodyResult(t *testing.T) {
	// The clause sees the handled body's final value as the result of
	// resume, and its own return value becomes the handle expression's.
	src := askEffect + `fn main() {
		handle {
			perform Ask.ask("x") * 10
		} with Ask {
			ask(prompt, k) { let r = resume k(4); r + 1 }
		}
	}`
	expectRepr(t, src, "41")
}

func TestHandlerIsReinstalledAfterResume(t *testing.T) {
	src := askEffect + `fn main() {
		let v = handle {
			let i = 0;
			let total = 0;
			while i < 3 {
				total = total + perform Ask.ask("n");
				i = i + 1;
			}
			total
		} with Ask {
			ask(prompt, k) { resume k(5) }
		};
		v
	}`
	expectRepr(t, src, "15")
}

func TestInnermostHandlerWins(t *testing.T) {
	src := askEffect + `fn main() {
		handle {
			let inner = handle {
				perform Ask.ask("q")
			} with Ask {
				ask(prompt, k) { resume k(1) }
			};
			inner + perform Ask.ask("q")
		} with Ask {
			ask(prompt, k) { resume k(100) }
		}
	}`
	expectRepr(t, src, "101")
}

func TestMissingClauseSearchesOuterHandler(t *testing.T) {
	src := askEffect + `fn main() {
		handle {
			handle {
				perform Ask.ask("q")
			} with Ask {
				tell(msg, k) { resume k }
			}
		} with Ask {
			ask(prompt, k) { resume k(7) }
		}
	}`
	expectRepr(t, src, "7")
}

func TestPerformFromNestedCall(t *testing.T) {
	src := askEffect + `fn helper(n) { perform Ask.ask("h") + n }
	fn main() {
		handle {
			helper(1) + helper(2)
		} with Ask {
			ask(prompt, k) { resume k(10) }
		}
	}`
	expectRepr(t, src, "23")
}

func TestContinuationReused(t *testing.T) {
	src := askEffect + `fn main() {
		handle {
			perform Ask.ask("q")
		} with Ask {
			ask(prompt, k) { resume k(1); resume k(2) }
		}
	}`
	expectFault(t, src, FaultContinuationReused)
}

func TestContinuationAbandoned(t *testing.T) {
	src := askEffect + `fn main() {
		handle {
			perform Ask.ask("q")
		} with Ask {
			ask(prompt, k) { 0 }
		}
	}`
	expectFault(t, src, FaultContinuationAbandoned)
}

func TestUnhandledEffectSuspendsToHost(t *testing.T) {
	src := askEffect + `fn main() {
		let a = perform Ask.ask("first");
		let b = perform Ask.ask("second");
		a * b
	}`
	m := newMachine(t, src)
	ctx := context.Background()
	out, err := m.Run(ctx, "main")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.State != StateSuspendedEffect || out.Effect == nil {
		t.Fatalf("state = %s, want suspended", out.State)
	}
	req := out.Effect
	if req.Effect != "Ask" || req.Op != "ask" || len(req.Args) != 1 || req.Args[0].Str() != "first" {
		t.Fatalf("effect = %+v", req)
	}

	out, err = m.Resume(ctx, req.Token, FromInt(6))
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if out.State != StateSuspendedEffect || out.Effect.Args[0].Str() != "second" {
		t.Fatalf("second suspension = %s %+v", out.State, out.Effect)
	}
	first := req.Token

	out, err = m.Resume(ctx, out.Effect.Token, FromInt(7))
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if out.State != StateReturned || out.Value.Int() != 42 {
		t.Fatalf("result = %s %s, want 42", out.State, out.Value.Repr())
	}
	if _, err := m.Resume(ctx, first, Null); !errors.Is(err, ErrMachineFinished) {
		t.Errorf("resume after finish: err = %v, want ErrMachineFinished", err)
	}
}

func TestResumeHostTokenTwice(t *testing.T) {
	src := askEffect + `fn main() {
		let a = perform Ask.ask("first");
		let b = perform Ask.ask("second");
		a + b
	}`
	m := newMachine(t, src)
	ctx := context.Background()
	out, err := m.Run(ctx, "main")
	if err != nil {
		t.Fatal(err)
	}
	token := out.Effect.Token
	if _, err := m.Resume(ctx, token, FromInt(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Resume(ctx, token, FromInt(1)); !IsFault(err, FaultContinuationReused) {
		t.Fatalf("err = %v, want continuation reused", err)
	}
	if _, err := m.Resume(ctx, 99, FromInt(1)); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("err = %v, want ErrUnknownToken", err)
	}
}

func TestUnhandledEffectInFutureFaults(t *testing.T) {
	src := askEffect + `fn worker() { perform Ask.ask("q") }
	fn main() {
		let f = spawn worker();
		await f
	}`
	expectFault(t, src, FaultUnhandledEffect)
}
