package controllers

import (
	"encoding/xml"
	"io"

	"github.com/transitlab/sirihub/pkg/domain"

	"github.com/gin-gonic/gin"
)

// Inbound bodies are capped well above any sane delivery size.
const maxBodyBytes = 64 << 20

func readSiri(c *gin.Context) (*domain.Siri, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	var env domain.Siri
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func writeSiri(c *gin.Context, status int, env *domain.Siri) {
	c.XML(status, env)
}
