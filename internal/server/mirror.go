// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package server

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	sdkconfig "github.com/aws/aws-sdk-go-v2/config"
	sdks3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

// mirrorOpTimeout bounds a single best-effort S3 call so a slow or
// unreachable bucket never holds up the session that triggered it.
const mirrorOpTimeout = 30 * time.Second

// Mirror best-effort replicates stored files to an S3 bucket. A mirror
// failure is logged and otherwise ignored: S3 is a backup copy, never the
// source of truth for DOWNLOAD.
type Mirror struct {
	client *sdks3.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewMirror builds a Mirror using the default AWS credential chain
// (environment, shared config, instance role) for region.
func NewMirror(ctx context.Context, bucket, prefix, region string, logger *slog.Logger) (*Mirror, error) {
	cfg, err := sdkconfig.LoadDefaultConfig(ctx, sdkconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &Mirror{
		client: sdks3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
		logger: logger.With("component", "mirror", "bucket", bucket),
	}, nil
}

func (m *Mirror) key(owner, filename string) string {
	if m.prefix == "" {
		return owner + "/" + filename
	}
	return m.prefix + "/" + owner + "/" + filename
}

// Put uploads data under owner/filename. Failure is logged, not returned:
// callers must not block UPLOAD's reply on mirror availability.
func (m *Mirror) Put(owner, filename string, data []byte) {
	if m == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorOpTimeout)
	defer cancel()

	_, err := m.client.PutObject(ctx, &sdks3.PutObjectInput{
		Bucket: sdkaws.String(m.bucket),
		Key:    sdkaws.String(m.key(owner, filename)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		m.logger.Warn("mirror put failed", "owner", owner, "filename", filename, "error", err)
		return
	}
	m.logger.Debug("mirror put succeeded", "owner", owner, "filename", filename)
}

// Delete removes owner/filename from the mirror. Failure is logged, not
// returned.
func (m *Mirror) Delete(owner, filename string) {
	if m == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorOpTimeout)
	defer cancel()

	_, err := m.client.DeleteObject(ctx, &sdks3.DeleteObjectInput{
		Bucket: sdkaws.String(m.bucket),
		Key:    sdkaws.String(m.key(owner, filename)),
	})
	if err != nil {
		m.logger.Warn("mirror delete failed", "owner", owner, "filename", filename, "error", err)
		return
	}
	m.logger.Debug("mirror delete succeeded", "owner", owner, "filename", filename)
}
