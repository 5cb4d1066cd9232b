/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package utils

import (
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
)

// Logger returns a gin middleware logging one line per request through klog.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		if len(c.Errors) > 0 {
			klog.Errorf("%s %s %d %v %s", c.Request.Method, path, status, latency, c.Errors.String())
			return
		}
		klog.V(4).Infof("%s %s %d %v", c.Request.Method, path, status, latency)
	}
}
