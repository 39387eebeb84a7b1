/*
 * Copyright 2019-2020 by Nedim Sabic Sabic
 * https://www.fibratus.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package telemetry

import (
	"context"

	"github.com/olivere/elastic/v7"

	"github.com/evgeni/sysdig/pkg/ierrors"
)

// ElasticExporter indexes each Stats snapshot as a document in index.
type ElasticExporter struct {
	client *elastic.Client
	index  string
}

// NewElasticExporter builds a client against urls and verifies
// connectivity with a Ping against the first URL.
func NewElasticExporter(urls []string, index string) (*ElasticExporter, error) {
	client, err := elastic.NewClient(
		elastic.SetURL(urls...),
		elastic.SetSniff(false),
	)
	if err != nil {
		return nil, ierrors.New(ierrors.KindSetup, err)
	}
	if len(urls) > 0 {
		if _, _, err := client.Ping(urls[0]).Do(context.Background()); err != nil {
			return nil, ierrors.New(ierrors.KindSetup, err)
		}
	}
	return &ElasticExporter{client: client, index: index}, nil
}

// Export indexes stats as a new document.
func (e *ElasticExporter) Export(stats Stats) error {
	_, err := e.client.Index().Index(e.index).BodyJson(stats).Do(context.Background())
	return err
}

// Close flushes the underlying HTTP client; elastic.Client has no
// explicit close, so this stops the background health-check goroutines.
func (e *ElasticExporter) Close() error {
	e.client.Stop()
	return nil
}
