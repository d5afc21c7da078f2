// Copyright 2024 Alexandre Mahdhaoui
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

package tagmap

import (
	"k8s.io/apimachinery/pkg/util/rand"
)

const (
	labelPrefix = "tag_label_"
	valuePrefix = "tag_value_"

	// componentLength is the length of generated labels and values.
	componentLength = 15
)

// RandomComponents returns a random tag label and value of 15 characters each.
func RandomComponents() (label, value string) {
	return randomWithPrefix(labelPrefix), randomWithPrefix(valuePrefix)
}

func randomWithPrefix(prefix string) string {
	return prefix + rand.String(componentLength-len(prefix))
}
