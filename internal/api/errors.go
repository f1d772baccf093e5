//
// Copyright © 2017 Ikey Doherty <ikey@solus-project.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package api

import "errors"

var (
	errInvalidWorkerCount   = errors.New("api: count must be a positive integer")
	errInvalidGroupNumber   = errors.New("api: group_number must be a non-negative integer")
	errInvalidPriority      = errors.New("api: priority must be an integer")
	errConfirmationRequired = errors.New("api: destructive operation requires ?really=true")
)
