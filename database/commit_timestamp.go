// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"fmt"
)

// CommitTimestampError reports that the two stores were last committed at
// different times, meaning a commit reached only one of them
type CommitTimestampError struct {
	MetadataTimestamp int64
	BlobTimestamp     int64
}

func (e CommitTimestampError) Error() string {
	return fmt.Sprintf(
		"commit timestamp mismatch: %d (metadata) != %d (blob)",
		e.MetadataTimestamp,
		e.BlobTimestamp,
	)
}

func (d *Database) checkCommitTimestamp() error {
	metadataTimestamp, err := d.metadata.GetCommitTimestamp()
	if err != nil {
		return fmt.Errorf(
			"failed to get metadata timestamp from plugin: %w",
			err,
		)
	}
	blobTimestamp, err := d.blob.GetCommitTimestamp()
	if err != nil {
		return fmt.Errorf(
			"failed to get blob timestamp from plugin: %w",
			err,
		)
	}
	if blobTimestamp != metadataTimestamp {
		return CommitTimestampError{
			MetadataTimestamp: metadataTimestamp,
			BlobTimestamp:     blobTimestamp,
		}
	}
	return nil
}

func (d *Database) updateCommitTimestamp(txn *Txn, timestamp int64) error {
	if err := d.metadata.SetCommitTimestamp(timestamp, txn.Metadata()); err != nil {
		return err
	}
	return d.blob.SetCommitTimestamp(timestamp, txn.Blob())
}
