package app

import (
	"fmt"
	"strconv"
	"strings"
)

// AnswerPayload encodes a button's callback data as q<question>:<option>.
func AnswerPayload(questionIndex, optionIndex int) string {
	return fmt.Sprintf("q%d:%d", questionIndex, optionIndex)
}

// ParseAnswerPayload decodes callback data produced by AnswerPayload.
func ParseAnswerPayload(raw string) (questionIndex, optionIndex int, err error) {
	rest, ok := strings.CutPrefix(raw, "q")
	if !ok {
		return 0, 0, fmt.Errorf("answer payload %q: missing prefix", raw)
	}
	qPart, oPart, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, 0, fmt.Errorf("answer payload %q: missing separator", raw)
	}
	questionIndex, err = strconv.Atoi(qPart)
	if err != nil {
		return 0, 0, fmt.Errorf("answer payload %q: question index: %w", raw, err)
	}
	optionIndex, err = strconv.Atoi(oPart)
	if err != nil {
		return 0, 0, fmt.Errorf("answer payload %q: option index: %w", raw, err)
	}
	return questionIndex, optionIndex, nil
}
