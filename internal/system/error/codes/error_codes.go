/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package codes

// Error codes for the Consent Widget Engine
const (
	// General errors
	InternalServerError = "CWE-5000"
	StorageError        = "CWE-5001"
	InvalidRequest      = "CWE-4000"
	ValidationError     = "CWE-4001"
	ResourceNotFound    = "CWE-4004"

	// Configuration errors
	WidgetConfigNotFound = "CWE-4040"
	ConfigFetchFailed    = "CWE-5010"
	RuleInvalid          = "CWE-4041"

	// Consent submission errors
	SubmissionFailed  = "CWE-5011"
	EmptyDecision     = "CWE-4042"
	SubmissionTooWide = "CWE-4043"

	// Identity errors
	ConsentIDInvalid = "CWE-4044"
	OTPInvalid       = "CWE-4045"

	// Translation errors
	TranslationFailed     = "CWE-5012"
	TranslationInProgress = "CWE-4090"
)
