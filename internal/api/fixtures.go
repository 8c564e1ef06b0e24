package api

import (
	"net/http"

	"code-judge/pkg/models"

	"github.com/gin-gonic/gin"
)

// Fixture paths contain slashes, so they travel in query parameters and JSON
// bodies rather than URL segments.

// AdminListFixtures lists all fixtures, or returns one record (with content
// for files) when ?path= is given.
func (s *Server) AdminListFixtures(c *gin.Context) {
	if path := c.Query("path"); path != "" {
		fx, content, err := s.fixtures.Get(path)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"fixture": fx, "content": content})
		return
	}
	list, err := s.fixtures.List()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fixtures": list})
}

type putFixtureRequest struct {
	Path        string `json:"path" binding:"required"`
	Kind        string `json:"kind" binding:"required"`
	Content     []byte `json:"content"` // base64 in transit
	Permissions string `json:"permissions"`
}

// AdminPutFixture creates or replaces a fixture.
func (s *Server) AdminPutFixture(c *gin.Context) {
	var req putFixtureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "path and kind are required")
		return
	}
	if req.Kind != models.FixtureKindFile && req.Kind != models.FixtureKindFolder {
		badRequest(c, "kind must be 'file' or 'folder'")
		return
	}
	fx, err := s.fixtures.Put(req.Path, req.Kind, req.Content, req.Permissions)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, fx)
}

// AdminDeleteFixture removes a fixture; folders take their contents with
// them.
func (s *Server) AdminDeleteFixture(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		badRequest(c, "path query parameter is required")
		return
	}
	if err := s.fixtures.Delete(path); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": path})
}

type fixturePermissionsRequest struct {
	Path        string `json:"path" binding:"required"`
	Permissions string `json:"permissions" binding:"required"`
}

// AdminSetFixturePermissions updates the recorded permission string and
// re-chmods the asset.
func (s *Server) AdminSetFixturePermissions(c *gin.Context) {
	var req fixturePermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "path and permissions are required")
		return
	}
	if err := s.fixtures.SetPermissions(req.Path, req.Permissions); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": req.Path})
}

// AdminFolderContents lists the entries directly inside a folder fixture.
func (s *Server) AdminFolderContents(c *gin.Context) {
	folder := c.Query("folder")
	if folder == "" {
		badRequest(c, "folder query parameter is required")
		return
	}
	list, err := s.fixtures.ListFolder(folder)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"folder": folder, "contents": list})
}

type folderFileRequest struct {
	Folder  string `json:"folder" binding:"required"`
	Name    string `json:"name" binding:"required"`
	Content []byte `json:"content"`
}

// AdminPutFolderFile writes one file inside an existing folder fixture.
func (s *Server) AdminPutFolderFile(c *gin.Context) {
	var req folderFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "folder and name are required")
		return
	}
	fx, err := s.fixtures.PutInFolder(req.Folder, req.Name, req.Content)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, fx)
}

// AdminDeleteFolderFile removes one file from a folder fixture.
func (s *Server) AdminDeleteFolderFile(c *gin.Context) {
	folder, name := c.Query("folder"), c.Query("name")
	if folder == "" || name == "" {
		badRequest(c, "folder and name query parameters are required")
		return
	}
	if err := s.fixtures.DeleteInFolder(folder, name); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": folder + "/" + name})
}

// AdminSyncFixtures reconciles fixture records against physical storage.
func (s *Server) AdminSyncFixtures(c *gin.Context) {
	removed, err := s.fixtures.Sync()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
