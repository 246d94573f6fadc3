package security

import (
	"context"
	"fmt"
	"strings"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	vhttp "github.com/bl4ck0w1/secretlynx/internal/validation/http"
	"github.com/bl4ck0w1/secretlynx/pkg/models"
)

const pathProbeConcurrency = 4

// fetchOK requests every path and keeps the bodies of 200 responses, indexed
// like paths. Failed requests leave an empty slot.
func fetchOK(ctx context.Context, t *Target, paths []string) []string {
	bodies := make([]string, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pathProbeConcurrency)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			resp, err := t.Client.Get(gctx, t.Join(path))
			if err != nil || !resp.OK() {
				return nil
			}
			bodies[i] = resp.Body
			return nil
		})
	}
	_ = g.Wait()
	return bodies
}

func (t *Target) logger() *logrus.Logger {
	if t.Logger == nil {
		return logrus.StandardLogger()
	}
	return t.Logger
}

func (t *Target) classifier() *vhttp.ResponseClassifier {
	if t.Classifier == nil {
		return vhttp.NewResponseClassifier(nil, t.logger())
	}
	return t.Classifier
}

// CheckSensitivePaths looks for exposed configuration, VCS and admin files.
// It always yields exactly one test.
func CheckSensitivePaths(ctx context.Context, t *Target) []models.VulnerabilityTest {
	classifier := t.classifier()
	bodies := fetchOK(ctx, t, SensitivePaths)

	var exposed []string
	for i, path := range SensitivePaths {
		body := bodies[i]
		if body == "" {
			continue
		}
		if fp, reason := classifier.IsFalsePositive(body); fp {
			t.logger().WithFields(logrus.Fields{"path": path, "reason": reason}).Debug("Skipping sensitive path")
			continue
		}
		if HasSensitiveContent(path, body) {
			exposed = append(exposed, path)
		}
	}

	if len(exposed) == 0 {
		return []models.VulnerabilityTest{newTest("Directory Traversal Protection", models.TestPass, models.SeverityInfo,
			"No sensitive files found publicly accessible", "Continue monitoring for exposed files", nil)}
	}
	list := strings.Join(exposed, ", ")
	return []models.VulnerabilityTest{newTest("Sensitive File Exposure", models.TestFail, models.SeverityHigh,
		"Sensitive files are publicly accessible: "+list,
		fmt.Sprintf("Immediately restrict access to these files: %s. Configure server to deny access to sensitive file patterns.", list),
		map[string]interface{}{
			"accessible_paths": list,
			"count":            len(exposed),
		})}
}

// CheckDebugEndpoints reports reachable diagnostics endpoints. Nothing is
// returned when none are exposed.
func CheckDebugEndpoints(ctx context.Context, t *Target) []models.VulnerabilityTest {
	classifier := t.classifier()
	bodies := fetchOK(ctx, t, DebugPaths)

	var exposed []string
	for i, path := range DebugPaths {
		body := bodies[i]
		if body == "" {
			continue
		}
		if vhttp.IsCustom404(body) || classifier.IsLikelyCatchAllShell(body) ||
			classifier.IsCatchAll(body) || vhttp.IsHTML(body) {
			continue
		}
		if HasDebugContent(body) {
			exposed = append(exposed, path)
		}
	}
	if len(exposed) == 0 {
		return nil
	}
	return []models.VulnerabilityTest{newTest("Debug Endpoint Exposure", models.TestFail, models.SeverityMedium,
		"Debug or development endpoints are publicly accessible",
		"Disable debug endpoints in production or restrict access",
		map[string]interface{}{"exposed_endpoints": strings.Join(exposed, ", ")})}
}
