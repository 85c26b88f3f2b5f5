package config

import (
	"fmt"
	"strconv"
)

// Parser parses a machine.toml document's tokens into a map[string]any.
// It covers the subset of TOML the document actually needs: top-level
// key/value pairs, [tables], [[arrays of tables]] (dotted paths into
// both), and array/scalar values. Inline tables ({ a = 1 }) never appear
// in a switch roster or accelerometer tuning block, so that production
// isn't implemented.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	root      map[string]any
	current   any // Pointer to the current map or slice of maps being populated (scope)
}

func NewParser(input []byte) *Parser {
	l := NewLexer(input)
	p := &Parser{
		lexer: l,
		root:  make(map[string]any),
	}
	p.nextToken()
	p.nextToken()
	p.current = p.root
	return p
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()

	// Skip comments automatically
	for p.peekToken.Type == TokenComment {
		p.peekToken = p.lexer.NextToken()
	}
}

func (p *Parser) Parse() (map[string]any, error) {
	for p.curToken.Type != TokenEOF {
		if p.curToken.Type == TokenNewline {
			p.nextToken()
			continue
		}

		if err := p.parseStatement(); err != nil {
			return nil, err
		}
	}
	return p.root, nil
}

func (p *Parser) parseStatement() error {
	switch p.curToken.Type {
	case TokenLBracket:
		// Table Definition: [table] or [[array.table]]
		return p.parseTableDeclaration()
	case TokenIdent, TokenString:
		// Key-Value Pair: key = value
		return p.parseKeyValuePair(p.current)
	case TokenError:
		return fmt.Errorf("lexing error line %d: %s", p.curToken.Line, p.curToken.Literal)
	default:
		return fmt.Errorf("unexpected token line %d: %s", p.curToken.Line, p.curToken.String())
	}
}

// parseTableDeclaration handles [key] and [[key]]
func (p *Parser) parseTableDeclaration() error {
	isArray := false
	if p.peekToken.Type == TokenLBracket {
		// It is [[ ...
		p.nextToken() // consume first [
		isArray = true
	}
	p.nextToken() // consume [

	// Parse Key (dotted)
	keys, err := p.parseKeyParts()
	if err != nil {
		return err
	}

	if isArray {
		if p.curToken.Type != TokenRBracket {
			return fmt.Errorf("expected closing bracket for array table at line %d", p.curToken.Line)
		}
		p.nextToken() // consume first ]
	}

	if p.curToken.Type != TokenRBracket {
		return fmt.Errorf("expected closing bracket for table at line %d", p.curToken.Line)
	}
	p.nextToken() // consume final ]

	// Define scope
	return p.setTableScope(keys, isArray)
}

// setTableScope navigates/creates the map structure and sets p.current
func (p *Parser) setTableScope(keys []string, isArrayOfTables bool) error {
	// Table declarations always start from root
	var ptr any = p.root

	for i, key := range keys {
		isLast := i == len(keys)-1
		currentMap, ok := ptr.(map[string]any)
		if !ok {
			return fmt.Errorf("key path conflict: %s is not a map", key)
		}

		if isLast {
			if isArrayOfTables {
				// [[a.b]] -> Ensure 'b' is a slice of maps, append new map, set cursor to it
				var slice []map[string]any
				if val, exists := currentMap[key]; exists {
					if s, ok := val.([]map[string]any); ok {
						slice = s
					} else {
						return fmt.Errorf("key conflict: %s is not an array of tables", key)
					}
				} else {
					slice = make([]map[string]any, 0)
				}

				newMap := make(map[string]any)
				slice = append(slice, newMap)
				currentMap[key] = slice
				p.current = newMap
			} else {
				// [a.b] -> Ensure 'b' is a map, set cursor to it
				var targetMap map[string]any
				if val, exists := currentMap[key]; exists {
					if m, ok := val.(map[string]any); ok {
						targetMap = m
					} else {
						return fmt.Errorf("key conflict: %s is not a table", key)
					}
				} else {
					targetMap = make(map[string]any)
					currentMap[key] = targetMap
				}
				p.current = targetMap
			}
		} else {
			// Intermediate key -> ensure map exists and traverse
			if val, exists := currentMap[key]; exists {
				if _, ok := val.(map[string]any); !ok {
					// Implicit table creation logic:
					// If it's an array of tables, we usually grab the *last* element to traverse down?
					// TOML Spec: [a.b] implies defining b inside a. If a is defined as [[a]], it means last element of a.
					// Complex case. For simplified parser, we assume dotted paths traverse maps only.
					// If `key` points to a slice (Array of Tables), we take the LAST element.
					if slice, ok := val.([]map[string]any); ok {
						if len(slice) == 0 {
							return fmt.Errorf("cannot traverse empty array table %s", key)
						}
						ptr = slice[len(slice)-1] // traverse into last element
						continue
					}
					return fmt.Errorf("intermediate key %s is not a map", key)
				}
				ptr = val
			} else {
				newMap := make(map[string]any)
				currentMap[key] = newMap
				ptr = newMap
			}
		}
	}
	return nil
}

func (p *Parser) parseKeyValuePair(scope any) error {
	// Parse Key (dotted allowed: a.b.c = 1)
	keys, err := p.parseKeyParts()
	if err != nil {
		return err
	}

	if p.curToken.Type != TokenEqual {
		return fmt.Errorf("expected '=' after key at line %d, got %s", p.curToken.Line, p.curToken.String())
	}
	p.nextToken() // consume =

	val, err := p.parseValue()
	if err != nil {
		return err
	}

	// Assign value to scope
	return p.assignValue(scope, keys, val)
}

func (p *Parser) assignValue(scope any, keys []string, val any) error {
	ptr := scope

	// If scope is map, easy. If scope is not map, error.
	currentMap, ok := ptr.(map[string]any)
	if !ok {
		return fmt.Errorf("scope is not a map")
	}

	for i, key := range keys {
		if i == len(keys)-1 {
			// Final key, assign value
			if _, exists := currentMap[key]; exists {
				return fmt.Errorf("duplicate key %s at line %d", key, p.curToken.Line)
			}
			currentMap[key] = val
		} else {
			// Intermediate, ensure map
			if existing, exists := currentMap[key]; exists {
				if m, ok := existing.(map[string]any); ok {
					currentMap = m
				} else {
					return fmt.Errorf("intermediate key %s is not a map", key)
				}
			} else {
				newMap := make(map[string]any)
				currentMap[key] = newMap
				currentMap = newMap
			}
		}
	}
	return nil
}

func (p *Parser) parseKeyParts() ([]string, error) {
	var keys []string

	for {
		if p.curToken.Type != TokenIdent && p.curToken.Type != TokenString {
			return nil, fmt.Errorf("expected key at line %d, got %s", p.curToken.Line, p.curToken.String())
		}
		keys = append(keys, p.curToken.Literal)
		p.nextToken()

		if p.curToken.Type == TokenDot {
			p.nextToken() // consume dot, expect another key
			continue
		}
		break
	}
	return keys, nil
}

func (p *Parser) parseValue() (any, error) {
	switch p.curToken.Type {
	case TokenString:
		val := p.curToken.Literal
		p.nextToken()
		return val, nil
	case TokenInteger:
		val, _ := strconv.ParseInt(p.curToken.Literal, 10, 64)
		p.nextToken()
		return int(val), nil // Cast to int for convenience
	case TokenFloat:
		val, _ := strconv.ParseFloat(p.curToken.Literal, 64)
		p.nextToken()
		return val, nil
	case TokenBool:
		val := p.curToken.Literal == "true"
		p.nextToken()
		return val, nil
	case TokenLBracket:
		return p.parseArray()
	}
	return nil, fmt.Errorf("unexpected value token %s at line %d", p.curToken.String(), p.curToken.Line)
}

func (p *Parser) parseArray() ([]any, error) {
	p.nextToken() // consume [
	arr := make([]any, 0)

	for p.curToken.Type != TokenRBracket {
		if p.curToken.Type == TokenNewline {
			p.nextToken()
			continue
		}

		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		arr = append(arr, val)

		if p.curToken.Type == TokenComma {
			p.nextToken()
		} else if p.curToken.Type != TokenRBracket {
			// Check for newlines between elements if missing comma? TOML usually requires comma.
			// Relaxed parser: require comma unless followed immediately by bracket (trailing comma allowed)
			if p.curToken.Type == TokenNewline {
				p.nextToken()
				continue
			}
			return nil, fmt.Errorf("expected comma or closing bracket in array at line %d", p.curToken.Line)
		}
	}
	p.nextToken() // consume ]
	return arr, nil
}