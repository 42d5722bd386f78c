// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package s3 is the object storage service handler for Amazon S3 and
S3-compatible stores (MinIO, Ceph RGW).

Credentials come from credentials.access_key_id and
credentials.secret_access_key when set, and from the default AWS chain
otherwise. Set options.endpoint and options.force_path_style for
S3-compatible stores. options.default_bucket is used when a request names
no bucket; options.allowed_buckets restricts which buckets agents may touch.
*/
package s3
