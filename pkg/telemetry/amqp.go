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
	"encoding/json"

	"github.com/streadway/amqp"

	"github.com/evgeni/sysdig/pkg/ierrors"
)

// AMQPExporter publishes each Stats snapshot as a JSON message to a
// fanout/topic exchange.
type AMQPExporter struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewAMQPExporter dials url and declares exchange (a topic exchange,
// durable, non-auto-deleted).
func NewAMQPExporter(url, exchange string) (*AMQPExporter, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, ierrors.New(ierrors.KindSetup, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, ierrors.New(ierrors.KindSetup, err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, ierrors.New(ierrors.KindSetup, err)
	}
	return &AMQPExporter{conn: conn, channel: ch, exchange: exchange}, nil
}

// Export publishes stats as JSON with routing key "capture.stats".
func (a *AMQPExporter) Export(stats Stats) error {
	body, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return a.channel.Publish(a.exchange, "capture.stats", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Close releases the channel and connection.
func (a *AMQPExporter) Close() error {
	if err := a.channel.Close(); err != nil {
		return err
	}
	return a.conn.Close()
}
