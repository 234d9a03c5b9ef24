package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/version"
)

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	GitVersion   string `json:"git_version"`
	GitCommit    string `json:"git_commit,omitempty"`
	GitTreeState string `json:"git_tree_state,omitempty"`
	BuildDate    string `json:"build_date,omitempty"`
	GoVersion    string `json:"go_version,omitempty"`
	Platform     string `json:"platform,omitempty"`
}

// RegisterVersionRoutes registers GET /version.
func RegisterVersionRoutes(r gin.IRoutes) {
	r.GET("/version", func(c *gin.Context) {
		info := version.Get()
		c.JSON(http.StatusOK, VersionResponse{
			GitVersion:   info.GitVersion,
			GitCommit:    info.GitCommit,
			GitTreeState: info.GitTreeState,
			BuildDate:    info.BuildDate,
			GoVersion:    info.GoVersion,
			Platform:     info.Platform,
		})
	})
}
