// Copyright 2025 StrataQL
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sdk

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastRetryConfig(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
		RetryIf:         func(error) bool { return true },
	}
}

func TestRetryWithBackoff_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	result, err := RetryWithBackoff(context.Background(), fastRetryConfig(3), func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %q", result)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoff_ExhaustionReturnsRetryError(t *testing.T) {
	calls := 0
	_, err := RetryWithBackoff(context.Background(), fastRetryConfig(2), func() (int, error) {
		calls++
		return 0, errors.New("always")
	})
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	var retryErr *RetryError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected *RetryError, got %T", err)
	}
	if retryErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", retryErr.Attempts)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoff_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	_, err := RetryWithBackoff(context.Background(), fastRetryConfig(5), func() (int, error) {
		calls++
		return 0, &NonRetryableError{Err: errors.New("bad credentials")}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryWithBackoff_RetryIfRejectsError(t *testing.T) {
	cfg := fastRetryConfig(5)
	cfg.RetryIf = func(err error) bool { return false }

	calls := 0
	_, err := RetryWithBackoff(context.Background(), cfg, func() (int, error) {
		calls++
		return 0, errors.New("permanent")
	})
	if err == nil || err.Error() != "permanent" {
		t.Fatalf("expected original error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryWithBackoff_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := RetryWithBackoff(ctx, fastRetryConfig(3), func() (int, error) {
		calls++
		return 0, errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0 (cancelled before first attempt)", calls)
	}
}

func TestRetryVoid(t *testing.T) {
	calls := 0
	err := RetryVoid(context.Background(), fastRetryConfig(3), func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDefaultRetryCondition(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"rate limited", fmt.Errorf("upstream said: too many requests"), true},
		{"http 503", errors.New("unexpected status 503"), true},
		{"plain failure", errors.New("syntax error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultRetryCondition(tt.err); got != tt.want {
				t.Errorf("DefaultRetryCondition(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
