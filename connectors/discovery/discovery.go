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

// Package discovery enumerates data-source connector plugins by invoking an
// external interpreter process. It implements the seed loader's Discoverer
// capability plus the availability precondition the loader gates on: the
// interpreter must be resolvable and the bridge resources must exist on
// disk. The seed loader owns failure policy; this package just reports
// errors.
package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"time"

	"strataql/engine/connectors/base"
	"strataql/engine/connectors/script"
)

// DefaultInterpreter is the interpreter executable used when none is
// configured.
const DefaultInterpreter = "python3"

// Options configures an Interpreter discoverer.
type Options struct {
	// Interpreter is the executable name or path, resolved via the host's
	// PATH lookup rules. Defaults to DefaultInterpreter.
	Interpreter string

	// BridgeScript is the path to the plugin bridge script the interpreter
	// runs. Required.
	BridgeScript string

	// PluginDir is the directory the bridge scans for connector plugins.
	// Required.
	PluginDir string

	// ExtraResources lists additional paths that must exist for discovery
	// to be considered available.
	ExtraResources []string

	// Timeout bounds one bridge invocation. The discoverer bounds its own
	// runtime; callers apply no deadline of their own. Defaults to 30s.
	Timeout time.Duration

	Logger *log.Logger
}

// Interpreter discovers connector plugins by running the bridge script under
// an external interpreter.
type Interpreter struct {
	opts   Options
	logger *log.Logger
}

// listResult is the JSON document the bridge prints for --list-connectors.
type listResult struct {
	OK      bool            `json:"ok"`
	Error   string          `json:"error,omitempty"`
	Plugins []script.Plugin `json:"plugins"`
}

// New creates an interpreter-backed discoverer.
func New(opts Options) *Interpreter {
	if opts.Interpreter == "" {
		opts.Interpreter = DefaultInterpreter
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[DISCOVERY] ", log.LstdFlags)
	}
	return &Interpreter{opts: opts, logger: logger}
}

// Available reports whether the discovery mechanism looks usable: the
// interpreter resolves on this host and every required resource path exists.
// It performs no interpreter invocation.
func (d *Interpreter) Available() bool {
	if _, err := exec.LookPath(d.opts.Interpreter); err != nil {
		return false
	}
	required := append([]string{d.opts.BridgeScript, d.opts.PluginDir}, d.opts.ExtraResources...)
	for _, path := range required {
		if path == "" {
			return false
		}
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

// DiscoverConnectors runs the bridge once and returns the discovered plugin
// names alongside their connector handles, in matching order.
func (d *Interpreter) DiscoverConnectors(ctx context.Context) ([]string, []base.Connector, error) {
	interp, err := exec.LookPath(d.opts.Interpreter)
	if err != nil {
		return nil, nil, fmt.Errorf("interpreter %q not resolvable: %w", d.opts.Interpreter, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, interp, d.opts.BridgeScript, "--list-connectors", "--plugin-dir", d.opts.PluginDir)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, nil, fmt.Errorf("bridge invocation failed: %w (stderr: %s)", err, stderr.String())
		}
		return nil, nil, fmt.Errorf("bridge invocation failed: %w", err)
	}

	plugins, err := parseListOutput(stdout.Bytes())
	if err != nil {
		return nil, nil, err
	}

	names := make([]string, 0, len(plugins))
	handles := make([]base.Connector, 0, len(plugins))
	for _, plugin := range plugins {
		names = append(names, plugin.Name)
		handles = append(handles, script.New(interp, d.opts.BridgeScript, plugin))
	}

	d.logger.Printf("Bridge reported %d connector plugin(s)", len(names))
	return names, handles, nil
}

// parseListOutput decodes the bridge's listing document and validates it.
func parseListOutput(data []byte) ([]script.Plugin, error) {
	var result listResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("invalid bridge listing: %w", err)
	}
	if !result.OK {
		if result.Error == "" {
			return nil, fmt.Errorf("bridge reported failure without detail")
		}
		return nil, fmt.Errorf("bridge error: %s", result.Error)
	}
	for i, plugin := range result.Plugins {
		if plugin.Name == "" {
			return nil, fmt.Errorf("bridge listing entry %d has no name", i)
		}
	}
	return result.Plugins, nil
}
