package elasticsearch

// DefaultIndexName is the default Elasticsearch index used for product card documents.
const DefaultIndexName = "showcase_product_cards"

// maxCategoryBuckets bounds the category hit-count aggregation.
const maxCategoryBuckets = 1000

// maxFacetBuckets bounds the name-token facet aggregation.
const maxFacetBuckets = 200

// buildIndexMapping returns the full JSON mapping for the product cards index.
// name_tokens is a keyword copy of the lowercased name tokens used for facets.
func buildIndexMapping() string {
	return `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "showcase_analyzer": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "russian_stop", "russian_stemmer"]
        }
      },
      "filter": {
        "russian_stop": {
          "type": "stop",
          "stopwords": "_russian_"
        },
        "russian_stemmer": {
          "type": "stemmer",
          "language": "russian"
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "product_id":      { "type": "long" },
      "product_card_id": { "type": "long" },
      "category_id":     { "type": "long" },
      "name":            { "type": "text", "analyzer": "showcase_analyzer", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } },
      "name_tokens":     { "type": "keyword" },
      "price":           { "type": "double" },
      "feed_id":         { "type": "long" },
      "marketplace_id":  { "type": "long" },
      "status":          { "type": "keyword" }
    }
  }
}`
}
