// Copyright (c) 2026 John Earle
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

package attachments

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/salehjamaljad/gmail-fetcher/internal/models"
)

// InspectCell is the cell both Rabbit and Khateer sheets fill with the
// buyer's name.
const InspectCell = "D10"

// IsSpreadsheet reports whether ext names a workbook format.
func IsSpreadsheet(ext string) bool {
	return ext == "xlsx" || ext == "xls"
}

// Inspect tells Khateer from Rabbit by reading InspectCell on the active
// sheet. Any failure still yields Rabbit, together with the error so the
// caller can record it.
func Inspect(payload []byte) (models.Client, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return models.ClientRabbit, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		return models.ClientRabbit, fmt.Errorf("workbook has no active sheet")
	}

	value, err := f.GetCellValue(sheet, InspectCell)
	if err != nil {
		return models.ClientRabbit, fmt.Errorf("read %s!%s: %w", sheet, InspectCell, err)
	}

	if strings.Contains(strings.ToLower(value), "khateer") {
		return models.ClientKhateer, nil
	}
	return models.ClientRabbit, nil
}
