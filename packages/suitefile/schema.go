package suitefile

// envelopeSchema checks the shape of a suite file. Assertion and extractor
// entries are only required to be objects; their tags are checked on decode.
const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "baseUrl", "steps"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "baseUrl": {"type": "string", "pattern": "^https?://"},
    "variables": {"type": "object"},
    "credential": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "name": {"type": "string"},
        "type": {"enum": ["API_KEY", "BASIC_AUTH", "BEARER_TOKEN", "OAUTH2", "CUSTOM_HEADERS"]},
        "data": {"type": "object"}
      }
    },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "method", "endpoint"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "order": {"type": "integer"},
          "method": {"type": "string", "pattern": "^[A-Za-z]+$"},
          "endpoint": {"type": "string"},
          "headers": {"type": "object", "additionalProperties": {"type": "string"}},
          "assertions": {"type": "array", "items": {"type": "object"}},
          "extractVariables": {"type": "array", "items": {"type": "object"}}
        }
      }
    }
  }
}`
