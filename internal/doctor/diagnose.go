// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/automa-saga/logx"
	"github.com/charmbracelet/lipgloss"
	"github.com/hashgraph/solo-storemig/internal/config"
	"github.com/hashgraph/solo-storemig/internal/version"
	"github.com/hashgraph/solo-storemig/pkg/erx"
	"github.com/hashgraph/solo-storemig/pkg/exit"
	"github.com/joomcode/errorx"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TraceIdKey is the context key holding the trace id of the current invocation.
const TraceIdKey = "traceId"

type ErrorDiagnosis struct {
	Error      error             `yaml:"error" json:"error"`
	Message    string            `yaml:"message" json:"message"`
	Cause      string            `yaml:"cause" json:"cause"`
	ErrorType  string            `yaml:"errorType" json:"errorType"`
	TraceId    string            `yaml:"traceId" json:"traceId"`
	Commit     string            `yaml:"commit" json:"commit"`
	Version    string            `yaml:"version" json:"version"`
	Pid        int               `yaml:"pid" json:"pid"`
	Code       int               `yaml:"code" json:"code"`
	Logfile    string            `yaml:"log" json:"log"`
	Details    map[string]string `yaml:"details" json:"details"`
	Resolution []string          `yaml:"steps" json:"steps"`
}

func toErrorCode(err error) int {
	switch {
	case errorx.IsOfType(err, errorx.IllegalArgument):
		return 10400
	case errorx.IsOfType(err, erx.Locked):
		return 10409
	case errorx.IsOfType(err, erx.InvalidMapping), errorx.IsOfType(err, erx.TransformationFailed):
		return 10422
	case errorx.IsOfType(err, erx.Cancelled):
		return 10499
	default:
		if errorx.HasTrait(err, errorx.NotFound()) {
			return 10404
		}
		return 10500
	}
}

// toExitCode maps an error to the process exit code reported by CheckErr.
func toExitCode(err error) exit.Code {
	switch {
	case errorx.IsOfType(err, errorx.IllegalArgument), errorx.IsOfType(err, errorx.IllegalFormat):
		return exit.UsageError
	case errorx.IsOfType(err, config.NotFoundError):
		return exit.ConfigurationError
	case errorx.IsOfType(err, erx.NotRecognized), errorx.IsOfType(err, erx.InvalidMapping):
		return exit.DataFormatError
	case errorx.IsOfType(err, erx.UnknownVersion), errorx.IsOfType(err, erx.NoPath),
		errorx.IsOfType(err, erx.MappingNotFound):
		return exit.MissingInputError
	case errorx.IsOfType(err, erx.TransformationFailed):
		return exit.MigrationFailed
	case errorx.IsOfType(err, erx.SwapFailed):
		return exit.SwapFailed
	case errorx.IsOfType(err, erx.IOFailure):
		return exit.InputOutputError
	case errorx.IsOfType(err, erx.Locked):
		return exit.TemporaryFailure
	case errorx.IsOfType(err, erx.Cancelled):
		return exit.Cancelled
	default:
		return exit.GeneralError
	}
}

func toErrorMessage(err error) (string, string) {
	e := errorx.Cast(err)
	if e == nil {
		return err.Error(), ""
	}

	if e.Cause() == nil {
		return e.Message(), ""
	}
	return e.Message(), fmt.Sprintf("%s", e.Cause())
}

func findResolution(err error) []string {
	details := erx.SafeErrorDetails(err)

	switch {
	case errorx.IsOfType(err, erx.NotRecognized):
		return []string{
			"Ensure the store was created by a schema version published in the catalog.",
			"Run 'storemig catalog' to list the known versions and their fingerprints.",
		}
	case errorx.IsOfType(err, erx.UnknownVersion):
		return []string{"Ensure the requested version is listed in catalog.yaml."}
	case errorx.IsOfType(err, erx.NoPath):
		return []string{
			fmt.Sprintf("No chain of mappings leads from %q to %q.", details["from"], details["to"]),
			"Add an explicit mapping file to the catalog if the versions must be connected.",
		}
	case errorx.IsOfType(err, erx.MappingNotFound):
		return []string{fmt.Sprintf("Add an explicit mapping from %q to %q; the changes between them cannot be inferred.",
			details["from"], details["to"])}
	case errorx.IsOfType(err, erx.InvalidMapping):
		return []string{"Ensure every entity and attribute named by the mapping exists in its schema versions."}
	case errorx.IsOfType(err, erx.TransformationFailed):
		if rec, ok := details["record"]; ok {
			return []string{fmt.Sprintf("Fix record %q of entity %q or adjust the mapping rules of step %s.",
				rec, details["entity"], details["step"])}
		}
		return []string{"Adjust the mapping rules of the failing step."}
	case errorx.IsOfType(err, erx.SwapFailed):
		return []string{
			"The original store was kept in place.",
			"Run 'storemig recover' before retrying the migration.",
		}
	case errorx.IsOfType(err, erx.Locked):
		return []string{fmt.Sprintf("Another process holds %q; wait for it to finish or raise migration.lockTimeout.", details["path"])}
	case errorx.IsOfType(err, erx.Cancelled):
		return []string{"The migration was cancelled and the original store is unchanged."}
	case errorx.IsOfType(err, erx.IOFailure):
		if p, ok := details["path"]; ok {
			return []string{fmt.Sprintf("Ensure %q is accessible and the filesystem has enough free space.", p)}
		}
		return []string{"Ensure the store directory is writable and has enough free space."}
	case errorx.IsOfType(err, errorx.IllegalArgument):
		if arg, ok := errorx.ExtractProperty(err, errorx.PropertyPayload()); ok {
			return []string{fmt.Sprintf("Ensure %q is provided.", arg)}
		}
		return []string{"Ensure all required arguments are provided."}
	case errorx.IsOfType(err, errorx.IllegalFormat):
		return []string{"Ensure provided data is in correct format."}
	case errorx.IsOfType(err, config.NotFoundError):
		if arg, ok := errorx.ExtractProperty(err, errorx.PropertyPayload()); ok {
			return []string{fmt.Sprintf("Ensure configuration file %q exists, is correctly formatted and accessible", arg)}
		}
		return []string{"Ensure configuration file exists and is accessible."}
	default:
		return []string{"Check error message for details or contact support"}
	}
}

// Diagnose attempts to find a resolution and provide a human friendly error response
func Diagnose(ctx context.Context, ex error) *ErrorDiagnosis {
	traceId, _ := ctx.Value(TraceIdKey).(string)

	msg, cause := toErrorMessage(ex)
	return &ErrorDiagnosis{
		Error:      ex,
		ErrorType:  errorx.GetTypeName(ex),
		Message:    msg,
		Cause:      cause,
		TraceId:    traceId,
		Code:       toErrorCode(ex),
		Commit:     version.Commit(),
		Version:    version.Number(),
		Pid:        os.Getpid(),
		Logfile:    config.Get().Log.Filename,
		Details:    erx.SafeErrorDetails(ex),
		Resolution: findResolution(ex),
	}
}

// Render writes the diagnosis to w. Optional instructions are printed ahead of the default resolution steps.
func (d *ErrorDiagnosis) Render(w io.Writer, instructions ...string) {
	line := func(gutter string, label string, value string) {
		_, _ = fmt.Fprintf(w, "%s\t%s %s\n", gutter, labelStyle.Render(label+":"), value)
	}
	eg := errorGutter.Render("*")
	rg := resolutionGutter.Render("*")

	_, _ = fmt.Fprintf(w, "\n%s\n", errorBanner.Render(banner("Error Diagnostics")))
	line(eg, "Error", d.Message)
	if d.Cause != "" {
		line(eg, "Cause", d.Cause)
	}
	line(eg, "Error Type", d.ErrorType)
	line(eg, "Error Code", fmt.Sprintf("%d", d.Code))

	keys := make([]string, 0, len(d.Details))
	for k := range d.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line(eg, cases.Title(language.English).String(k), d.Details[k])
	}

	line(eg, "Commit", metaStyle.Render(d.Commit))
	line(eg, "Pid", metaStyle.Render(fmt.Sprintf("%d", d.Pid)))
	line(eg, "TraceId", metaStyle.Render(d.TraceId))
	line(eg, "Version", metaStyle.Render(d.Version))
	if d.Logfile != "" {
		line(eg, "Logfile", linkStyle.Render(d.Logfile))
	}
	_, _ = fmt.Fprintf(w, "%s\n", errorBanner.Render(banner("")))

	_, _ = fmt.Fprintf(w, "\n%s\n", resolutionBanner.Render(banner("Resolution")))
	if len(instructions) > 0 && instructions[0] != "" {
		for _, l := range strings.Split(instructions[0], "\n") {
			if l == "" {
				_, _ = fmt.Fprintf(w, "%s\n", rg)
			} else {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", rg, labelStyle.Render(l))
			}
		}
		if len(d.Resolution) > 0 {
			_, _ = fmt.Fprintf(w, "%s\n", rg)
		}
	}
	for _, r := range d.Resolution {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", rg, textStyle.Render(r))
	}
	_, _ = fmt.Fprintf(w, "%s\n", resolutionBanner.Render(banner("")))
}

// CheckErr prints diagnosis and exits with the code matching the error
// Optional instructions can be provided to give additional context to the user
func CheckErr(ctx context.Context, err error, instructions ...string) {
	logx.As().Error().Err(err).Msg("error occurred")
	fmt.Printf("%+v\n", err)

	if !isatty.IsTerminal(os.Stdout.Fd()) {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	Diagnose(ctx, err).Render(os.Stdout, instructions...)
	toExitCode(err).TerminateProcess()
}
